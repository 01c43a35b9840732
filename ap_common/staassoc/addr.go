/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

import (
	"bytes"
	"net"

	"bgsta/common/network"
)

// Addr is a 6-octet hardware address.  It is comparable, so it can be used
// directly as a map key.  The zero value means "no address": a non-MLO link,
// an interface without an MLD address, or the wildcard entry.
type Addr [6]byte

// Wildcard is the key of the entry used purely as an attachment point for
// observers that want every station's transitions.
var Wildcard Addr

// AddrFromHW converts a net.HardwareAddr.  Anything other than 6 octets yields
// the zero address.
func AddrFromHW(hw net.HardwareAddr) Addr {
	var a Addr

	if len(hw) == len(a) {
		copy(a[:], hw)
	}
	return a
}

// ParseAddr parses a textual mac address.
func ParseAddr(s string) (Addr, error) {
	hw, err := network.ParseEUI48(s)
	if err != nil {
		return Addr{}, err
	}
	return AddrFromHW(hw), nil
}

// MustParseAddr is like ParseAddr, but panics on a malformed address.  It is
// intended for tables and tests.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero returns true for the all-zero address.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// HardwareAddr returns a copy of the address as a net.HardwareAddr.
func (a Addr) HardwareAddr() net.HardwareAddr {
	hw := make(net.HardwareAddr, len(a))
	copy(hw, a[:])
	return hw
}

// Uint64 encodes the address the way it is carried in published events.
func (a Addr) Uint64() uint64 {
	return network.HWAddrToUint64(a[:])
}

func (a Addr) String() string {
	return net.HardwareAddr(a[:]).String()
}

func (a Addr) less(b Addr) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
