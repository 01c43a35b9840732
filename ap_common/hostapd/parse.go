/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package hostapd

import (
	"encoding/hex"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"bgsta/common/network"

	"github.com/pkg/errors"
)

// StatusKind identifies an unsolicited hostapd control message.
type StatusKind int

// The station messages we act on.
const (
	StaConnected StatusKind = iota
	StaDisconnected
)

var statusKinds = map[string]StatusKind{
	"AP-STA-CONNECTED":    StaConnected,
	"AP-STA-DISCONNECTED": StaDisconnected,
}

func (k StatusKind) String() string {
	for name, kind := range statusKinds {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// Status is a parsed unsolicited message, such as
//
//	<3>AP-STA-CONNECTED 42:00:00:00:00:01 keyid=3
type Status struct {
	Kind   StatusKind
	Addr   net.HardwareAddr
	Params map[string]string
}

const (
	macOctet = "[[:xdigit:]][[:xdigit:]]"
	macAddr  = "(" + macOctet + ":" + macOctet + ":" + macOctet + ":" +
		macOctet + ":" + macOctet + ":" + macOctet + ")"
)

var (
	prefixRE = regexp.MustCompile(`^<\d+>`)
	statusRE = regexp.MustCompile(`^(AP-STA-CONNECTED|AP-STA-DISCONNECTED) ` +
		macAddr + `(.*)$`)
)

// ParseStatus decodes an unsolicited message.  The second return value is
// false for messages which don't describe a station arriving or leaving.
func ParseStatus(msg string) (Status, bool) {
	var s Status

	msg = strings.TrimSpace(prefixRE.ReplaceAllString(msg, ""))
	m := statusRE.FindStringSubmatch(msg)
	if m == nil {
		return s, false
	}

	addr, err := network.ParseEUI48(m[2])
	if err != nil {
		return s, false
	}

	s.Kind = statusKinds[m[1]]
	s.Addr = addr
	s.Params = parseParams(strings.Fields(m[3]))
	return s, true
}

func parseParams(fields []string) map[string]string {
	params := make(map[string]string)
	for _, f := range fields {
		if kv := strings.SplitN(f, "=", 2); len(kv) == 2 {
			params[kv[0]] = kv[1]
		}
	}
	return params
}

// StaInfo is the subset of a "STA <addr>" reply we consume.
type StaInfo struct {
	Addr          net.HardwareAddr
	MLDAddr       net.HardwareAddr // nil for a non-MLO station
	Elements      []byte
	ConnectedTime time.Duration
	Flags         string
	Params        map[string]string
}

// ConnectedAt converts the connection age into an absolute time.
func (i StaInfo) ConnectedAt(now time.Time) time.Time {
	return now.Add(-i.ConnectedTime)
}

// Authorized returns true once the station has completed its handshake.
func (i StaInfo) Authorized() bool {
	return strings.Contains(i.Flags, "[AUTHORIZED]")
}

// ParseStaInfo decodes the reply to a STA, STA-FIRST or STA-NEXT command: the
// station address on the first line, followed by key=value lines.
func ParseStaInfo(reply string) (StaInfo, error) {
	var info StaInfo

	lines := strings.Split(strings.TrimSpace(reply), "\n")
	if len(lines) == 0 || lines[0] == "" || lines[0] == "FAIL" {
		return info, errors.Errorf("no such station")
	}

	addr, err := network.ParseEUI48(strings.TrimSpace(lines[0]))
	if err != nil {
		return info, errors.Wrap(err, "bad station address")
	}
	info.Addr = addr
	info.Params = parseParams(lines[1:])
	info.Flags = info.Params["flags"]

	if v, ok := info.Params["connected_time"]; ok {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return info, errors.Wrapf(err, "bad connected_time %q", v)
		}
		info.ConnectedTime = time.Duration(secs) * time.Second
	}

	for _, key := range []string{"mld_addr", "peer_mld_addr"} {
		if v, ok := info.Params[key]; ok {
			mld, err := network.ParseEUI48(v)
			if err != nil {
				return info, errors.Wrapf(err, "bad %s", key)
			}
			if !network.IsZeroMac(mld) {
				info.MLDAddr = mld
			}
			break
		}
	}

	if v, ok := info.Params["assoc_ie"]; ok {
		ies, err := hex.DecodeString(v)
		if err != nil {
			return info, errors.Wrap(err, "bad assoc_ie")
		}
		info.Elements = ies
	}

	return info, nil
}
