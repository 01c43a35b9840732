/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package wifi

import (
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	ssidIE   = []byte{0x00, 0x05, 'b', 'g', 'n', 'e', 't'}
	htIE     = append([]byte{0x2d, 0x1a}, make([]byte, 26)...)
	rsnIE    = []byte{0x30, 0x02, 0x01, 0x00}
	mdIE     = []byte{0x36, 0x03, 0x34, 0x12, 0x01}
	heIE     = []byte{0xff, 0x03, 35, 0x01, 0x02}
	ehtIE    = []byte{0xff, 0x02, 108, 0x00}
	vendorIE = []byte{0xdd, 0x05, 0x00, 0x50, 0xf2, 0x02, 0x01}

	// Basic Multi-Link: control, common info length, MLD address
	mlIE = []byte{0xff, 0x0a, 107, 0x00, 0x00, 0x07,
		0x42, 0x00, 0x00, 0x00, 0x0f, 0x01}
)

func concat(parts ...[]byte) []byte {
	var rval []byte
	for _, p := range parts {
		rval = append(rval, p...)
	}
	return rval
}

func TestParseElements(t *testing.T) {
	assert := require.New(t)

	elems, err := ParseElements(concat(ssidIE, heIE, vendorIE, rsnIE))
	assert.NoError(err)
	assert.Len(elems, 4)

	assert.Equal(layers.Dot11InformationElementIDSSID, elems[0].ID)
	assert.Equal([]byte("bgnet"), elems[0].Info)

	assert.Equal(IDExtension, elems[1].ID)
	assert.Equal(uint8(ExtHECapabilities), elems[1].ExtID)
	assert.Equal([]byte{0x01, 0x02}, elems[1].Info)

	assert.Equal(layers.Dot11InformationElementIDVendor, elems[2].ID)
	assert.Equal([]byte{0x00, 0x50, 0xf2, 0x02}, elems[2].OUI)
	assert.Equal([]byte{0x01}, elems[2].Info)

	// A short element at the very end of the buffer
	assert.Equal([]byte{0x01, 0x00}, elems[3].Info)

	elems, err = ParseElements(nil)
	assert.NoError(err)
	assert.Empty(elems)
}

func TestParseElementsMalformed(t *testing.T) {
	testCases := []struct {
		name string
		buf  []byte
		good int
	}{
		{"dangling octet", concat(ssidIE, []byte{0x01}), 1},
		{"overrun", []byte{0x00, 0x09, 'a'}, 0},
		{"short vendor", concat(rsnIE, []byte{0xdd, 0x02, 0x00, 0x50}), 1},
		{"empty extension", []byte{0xff, 0x00}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			elems, err := ParseElements(tc.buf)
			assert.Error(err)
			assert.Len(elems, tc.good)
		})
	}
}

func TestSummarize(t *testing.T) {
	assert := require.New(t)

	c, err := Summarize(concat(ssidIE, htIE, rsnIE, mdIE, heIE, ehtIE,
		mlIE, vendorIE))
	assert.NoError(err)
	assert.Equal("bgnet", c.SSID)
	assert.True(c.HT)
	assert.False(c.VHT)
	assert.True(c.HE)
	assert.True(c.EHT)
	assert.True(c.RSN)
	assert.True(c.FT)
	assert.Equal(uint16(0x1234), c.MDID)
	assert.Equal("42:00:00:00:0f:01", c.MLDAddr.String())
	assert.Equal([]string{"0050f202"}, c.Vendors)
	assert.Equal("be/ax/n", c.Modes())

	c, err = Summarize(concat(ssidIE, []byte{0x2d}))
	assert.Error(err)
	assert.Equal("bgnet", c.SSID)
	assert.Equal("legacy", c.Modes())
}

func TestParseMultiLink(t *testing.T) {
	assert := require.New(t)

	ml, err := ParseMultiLink(mlIE[3:])
	assert.NoError(err)
	assert.Equal(uint8(MultiLinkBasic), ml.Type)
	assert.Equal("42:00:00:00:0f:01", ml.MLDAddr.String())

	ml, err = ParseMultiLink([]byte{0x01, 0x00})
	assert.NoError(err)
	assert.Equal(uint8(MultiLinkProbe), ml.Type)
	assert.Nil(ml.MLDAddr)

	_, err = ParseMultiLink([]byte{0x00})
	assert.Error(err)
	_, err = ParseMultiLink([]byte{0x00, 0x00, 0x07, 0x42})
	assert.Error(err)
}
