/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package wifi decodes the 802.11 information elements a station sends in its
// (re)association request, as relayed by hostapd.
package wifi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// Element IDs not named by gopacket.
const (
	IDMobilityDomain layers.Dot11InformationElementID = 54
	IDExtension      layers.Dot11InformationElementID = 255
)

// Extension element IDs, carried in the first octet of an ID 255 element.
const (
	ExtHECapabilities  = 35
	ExtHEOperation     = 36
	ExtEHTOperation    = 106
	ExtMultiLink       = 107
	ExtEHTCapabilities = 108
)

// Multi-Link element types, in the low three bits of the control field.
const (
	MultiLinkBasic = 0
	MultiLinkProbe = 1
)

// Element is a single decoded information element.
type Element struct {
	ID    layers.Dot11InformationElementID
	ExtID uint8  // valid if ID is IDExtension
	OUI   []byte // vendor elements only: OUI and type
	Info  []byte // body, not including the extension ID or OUI
}

func (e Element) String() string {
	if e.ID == IDExtension {
		return fmt.Sprintf("ext-%d(%d)", e.ExtID, len(e.Info))
	}
	if e.ID == layers.Dot11InformationElementIDVendor {
		return fmt.Sprintf("vendor-%x(%d)", e.OUI, len(e.Info))
	}
	return fmt.Sprintf("%v(%d)", e.ID, len(e.Info))
}

// ParseElements splits a buffer of concatenated information elements.  The
// returned elements reference copies of the input.
func ParseElements(buf []byte) ([]Element, error) {
	var rval []Element

	for off := 0; off < len(buf); {
		if len(buf)-off < 2 {
			return rval, errors.Errorf("truncated element header at %d", off)
		}
		id := layers.Dot11InformationElementID(buf[off])
		l := int(buf[off+1])
		end := off + 2 + l
		if end > len(buf) {
			return rval, errors.Errorf("element %v at %d overruns buffer",
				id, off)
		}
		if id == layers.Dot11InformationElementIDVendor && l < 4 {
			return rval, errors.Errorf("short vendor element at %d", off)
		}

		// gopacket insists on four octets past the header even for
		// shorter elements, so decode from a padded copy.
		raw := make([]byte, end-off, end-off+4)
		copy(raw, buf[off:end])
		raw = append(raw, 0, 0, 0, 0)

		var ie layers.Dot11InformationElement
		if err := ie.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
			return rval, errors.Wrapf(err, "decoding element at %d", off)
		}

		e := Element{ID: ie.ID, OUI: ie.OUI, Info: ie.Info}
		if ie.ID == IDExtension {
			if len(ie.Info) < 1 {
				return rval, errors.Errorf("empty extension element at %d",
					off)
			}
			e.ExtID = ie.Info[0]
			e.Info = ie.Info[1:]
		}
		rval = append(rval, e)
		off = end
	}

	return rval, nil
}

// MultiLink is the interesting part of a Basic Multi-Link element.
type MultiLink struct {
	Type    uint8
	MLDAddr net.HardwareAddr
}

// ParseMultiLink decodes the body of a Multi-Link element.  Only the Basic
// variant carries the station's MLD address.
func ParseMultiLink(info []byte) (*MultiLink, error) {
	if len(info) < 2 {
		return nil, errors.Errorf("multi-link element too short: %d",
			len(info))
	}

	ml := &MultiLink{Type: info[0] & 0x07}
	if ml.Type != MultiLinkBasic {
		return ml, nil
	}

	// Control (2) | Common Info Length (1) | MLD MAC Address (6) | ...
	if len(info) < 9 || int(info[2]) < 7 {
		return nil, errors.Errorf("basic multi-link common info too short")
	}
	ml.MLDAddr = net.HardwareAddr(append([]byte(nil), info[3:9]...))
	return ml, nil
}

// MobilityDomain is the 802.11r Mobility Domain element.
type MobilityDomain struct {
	MDID   uint16
	OverDS bool
}

// ParseMobilityDomain decodes the body of a Mobility Domain element.
func ParseMobilityDomain(info []byte) (*MobilityDomain, error) {
	if len(info) < 3 {
		return nil, errors.Errorf("mobility domain element too short: %d",
			len(info))
	}
	return &MobilityDomain{
		MDID:   binary.LittleEndian.Uint16(info[0:2]),
		OverDS: info[2]&0x01 != 0,
	}, nil
}

// Caps summarizes what a station advertised when it associated.
type Caps struct {
	SSID    string
	HT      bool
	VHT     bool
	HE      bool
	EHT     bool
	RSN     bool
	MLDAddr net.HardwareAddr // nil unless a Basic Multi-Link element was sent
	MDID    uint16
	FT      bool
	Vendors []string // vendor OUIs, as hex
}

// Modes lists the 802.11 amendments the station supports, newest first.
func (c Caps) Modes() string {
	var modes []string

	if c.EHT {
		modes = append(modes, "be")
	}
	if c.HE {
		modes = append(modes, "ax")
	}
	if c.VHT {
		modes = append(modes, "ac")
	}
	if c.HT {
		modes = append(modes, "n")
	}
	if len(modes) == 0 {
		return "legacy"
	}
	return strings.Join(modes, "/")
}

// Summarize decodes an association element buffer into a Caps.  Malformed
// buffers still yield whatever preceded the bad element.
func Summarize(buf []byte) (Caps, error) {
	var c Caps

	elems, err := ParseElements(buf)
	for _, e := range elems {
		switch e.ID {
		case layers.Dot11InformationElementIDSSID:
			c.SSID = string(e.Info)
		case layers.Dot11InformationElementIDHTCapabilities:
			c.HT = true
		case layers.Dot11InformationElementIDVHTCapabilities:
			c.VHT = true
		case layers.Dot11InformationElementIDRSNInfo:
			c.RSN = true
		case IDMobilityDomain:
			if md, merr := ParseMobilityDomain(e.Info); merr == nil {
				c.MDID = md.MDID
				c.FT = true
			}
		case layers.Dot11InformationElementIDVendor:
			c.Vendors = append(c.Vendors, hex.EncodeToString(e.OUI))
		case IDExtension:
			switch e.ExtID {
			case ExtHECapabilities:
				c.HE = true
			case ExtEHTCapabilities:
				c.EHT = true
			case ExtMultiLink:
				ml, merr := ParseMultiLink(e.Info)
				if merr == nil && ml.MLDAddr != nil {
					c.MLDAddr = ml.MLDAddr
				}
			}
		}
	}

	return c, err
}
