/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package main

import (
	"testing"
	"time"

	"bgsta/ap_common/staassoc"
	"bgsta/base_def"

	"github.com/stretchr/testify/require"
)

func TestParseCfg(t *testing.T) {
	assert := require.New(t)

	cfg, err := parseCfg(Cfg{
		Interfaces: "wlan0=02:00:00:00:0f:02, wlan1=02:00:00:00:0f:02,wlan2",
		Settle:     "250ms",
		MaxLinks:   "4",
	})
	assert.NoError(err)
	assert.Equal([]string{"wlan0", "wlan1", "wlan2"}, cfg.vifNames())

	mld := staassoc.MustParseAddr("02:00:00:00:0f:02")
	mlds := cfg.mlds()
	assert.Equal(mld, mlds["wlan0"])
	assert.Equal(mld, mlds["wlan1"])
	assert.True(mlds["wlan2"].IsZero())

	assert.Equal(250*time.Millisecond, cfg.assoc.Settle)
	assert.Equal(time.Duration(0), cfg.assoc.Deadline)
	assert.Equal(4, cfg.assoc.MaxLinks)
	assert.Equal(base_def.WIFID_PROMETHEUS_PORT, cfg.promPort)
	assert.Equal(base_def.HOSTAPD_CTRL_DIR, cfg.hostapdDir)
	assert.Equal("", cfg.publishURL)
}

func TestParseCfgErrors(t *testing.T) {
	testCases := []struct {
		name string
		env  Cfg
		msg  string
	}{
		{"empty", Cfg{}, "no interfaces"},
		{"commas", Cfg{Interfaces: " , ,"}, "no interfaces"},
		{"dup", Cfg{Interfaces: "wlan0,wlan0"}, "listed twice"},
		{"mld", Cfg{Interfaces: "wlan0=bogus"}, "interface wlan0"},
		{"settle", Cfg{Interfaces: "wlan0", Settle: "soon"}, "bad settle"},
		{"negative", Cfg{Interfaces: "wlan0", Deadline: "-1s"}, "must be positive"},
		{"links", Cfg{Interfaces: "wlan0", MaxLinks: "many"}, "bad max links"},
		{"order", Cfg{Interfaces: "wlan0", Settle: "5s"}, "exceeds deadline"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			_, err := parseCfg(tc.env)
			assert.Error(err)
			assert.Contains(err.Error(), tc.msg)
		})
	}
}
