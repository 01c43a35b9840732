/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package network contains helper functions for handling the hardware
// addresses reported by wireless interfaces and the stations attached to them.
package network

import (
	"encoding/binary"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// HWAddrToUint64 encodes a net.HardwareAddr as a uint64
func HWAddrToUint64(a net.HardwareAddr) uint64 {
	hwaddr := make([]byte, 8)
	copy(hwaddr[2:], a)

	return binary.BigEndian.Uint64(hwaddr)
}

// Uint64ToHWAddr decodes a uint64 into a net.HardwareAddr
func Uint64ToHWAddr(a uint64) net.HardwareAddr {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, a)
	return net.HardwareAddr(b[2:])
}

// Uint64ToMac decodes a uint64 into a mac string
func Uint64ToMac(a uint64) string {
	return Uint64ToHWAddr(a).String()
}

// MacToUint64 decodes a mac string into a uint64
func MacToUint64(mac string) uint64 {
	var rval uint64

	if hwaddr, err := net.ParseMAC(mac); err == nil {
		rval = HWAddrToUint64(hwaddr)
	}
	return rval
}

// IsZeroMac returns true for an empty or all-zero hardware address.  Drivers
// report a zeroed address for an interface that has gone away.
func IsZeroMac(a net.HardwareAddr) bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParseEUI48 parses a 6-octet mac address.  Unlike net.ParseMAC, it rejects
// the longer EUI-64 and InfiniBand forms, and accepts the unseparated
// 12-digit form hostapd uses in some of its dumps.
func ParseEUI48(mac string) (net.HardwareAddr, error) {
	mac = strings.TrimSpace(mac)
	if len(mac) == 12 && !strings.ContainsAny(mac, ":-.") {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(mac[i : i+2])
		}
		mac = b.String()
	}

	hwaddr, err := net.ParseMAC(mac)
	if err != nil {
		return nil, err
	}
	if len(hwaddr) != 6 {
		return nil, errors.Errorf("not a 6-octet address: %s", mac)
	}
	return hwaddr, nil
}
