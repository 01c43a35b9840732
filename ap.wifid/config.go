/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package main

import (
	"strconv"
	"strings"
	"time"

	"bgsta/ap_common/staassoc"
	"bgsta/base_def"

	"github.com/pkg/errors"
)

// Cfg contains the environment variable-based configuration settings
type Cfg struct {
	Interfaces     string `envcfg:"B10E_WIFID_INTERFACES"`
	PrometheusPort string `envcfg:"B10E_WIFID_PROMETHEUS_PORT"`
	PublishURL     string `envcfg:"B10E_WIFID_PUBLISH_URL"`
	Settle         string `envcfg:"B10E_WIFID_SETTLE"`
	Deadline       string `envcfg:"B10E_WIFID_DEADLINE"`
	MaxLinks       string `envcfg:"B10E_WIFID_MAX_LINKS"`
	HostapdDir     string `envcfg:"B10E_WIFID_HOSTAPD_DIR"`
	LogLevel       string `envcfg:"B10E_WIFID_LOG_LEVEL"`
}

type vifConfig struct {
	name string
	mld  staassoc.Addr // zero unless the interface is part of an AP MLD
}

type wifidConfig struct {
	vifs       []vifConfig
	promPort   string
	publishURL string
	hostapdDir string
	assoc      staassoc.Config
}

func (c *wifidConfig) vifNames() []string {
	names := make([]string, 0, len(c.vifs))
	for _, v := range c.vifs {
		names = append(names, v.name)
	}
	return names
}

func (c *wifidConfig) mlds() map[string]staassoc.Addr {
	rval := make(map[string]staassoc.Addr)
	for _, v := range c.vifs {
		rval[v.name] = v.mld
	}
	return rval
}

// parseInterfaces decodes "wlan0=02:00:00:00:0f:02,wlan1,..."
func parseInterfaces(list string) ([]vifConfig, error) {
	var rval []vifConfig

	seen := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		var v vifConfig
		parts := strings.SplitN(item, "=", 2)
		v.name = parts[0]
		if len(parts) == 2 {
			mld, err := staassoc.ParseAddr(parts[1])
			if err != nil {
				return nil, errors.Wrapf(err, "interface %s", v.name)
			}
			v.mld = mld
		}
		if seen[v.name] {
			return nil, errors.Errorf("interface %s listed twice", v.name)
		}
		seen[v.name] = true
		rval = append(rval, v)
	}

	if len(rval) == 0 {
		return nil, errors.New("no interfaces configured")
	}
	return rval, nil
}

func parseDuration(name, val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(val)
	if err == nil && d <= 0 {
		err = errors.New("must be positive")
	}
	return d, errors.Wrapf(err, "bad %s '%s'", name, val)
}

func parseCfg(env Cfg) (*wifidConfig, error) {
	var err error

	c := &wifidConfig{
		promPort:   env.PrometheusPort,
		publishURL: env.PublishURL,
		hostapdDir: env.HostapdDir,
	}
	if c.promPort == "" {
		c.promPort = base_def.WIFID_PROMETHEUS_PORT
	}
	if c.hostapdDir == "" {
		c.hostapdDir = base_def.HOSTAPD_CTRL_DIR
	}

	if c.vifs, err = parseInterfaces(env.Interfaces); err != nil {
		return nil, err
	}
	if c.assoc.Settle, err = parseDuration("settle", env.Settle); err != nil {
		return nil, err
	}
	if c.assoc.Deadline, err = parseDuration("deadline", env.Deadline); err != nil {
		return nil, err
	}
	if env.MaxLinks != "" {
		if c.assoc.MaxLinks, err = strconv.Atoi(env.MaxLinks); err != nil {
			return nil, errors.Wrap(err, "bad max links")
		}
	}

	s, d := c.assoc.Settle, c.assoc.Deadline
	if s == 0 {
		s = staassoc.DefaultSettle
	}
	if d == 0 {
		d = staassoc.DefaultDeadline
	}
	if s > d {
		return nil, errors.Errorf("settle %v exceeds deadline %v", s, d)
	}

	return c, nil
}
