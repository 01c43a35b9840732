/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package main

import (
	"bytes"
	"os"
	"testing"

	"bgsta/ap_common/staassoc"

	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/klauspost/oui"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const roamTrace = `
vif wlan0 02:00:00:00:01:01
observe *
sta wlan0 42:00:00:00:00:01 connected ies=0005626e6574
advance 1s
expect 42:00:00:00:00:01 connected active=1
sta wlan0 42:00:00:00:00:01 disconnected
advance 4s
expect 42:00:00:00:00:01 disconnected active=0
`

type fakeVendors map[string]string

func (f fakeVendors) Query(mac string) (*oui.Entry, error) {
	if m, ok := f[mac]; ok {
		return &oui.Entry{Manufacturer: m}, nil
	}
	return nil, errors.New("not found")
}

func runCmd(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--no-color"))
	cmd.SetOutput(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestReplay(t *testing.T) {
	assert := require.New(t)

	AppFs = afero.NewMemMapFs()
	assert.NoError(afero.WriteFile(AppFs, "/roam.trace", []byte(roamTrace), 0644))

	out, err := runCmd(t, "replay", "/roam.trace", "--settle", "100ms")
	assert.NoError(err)
	assert.Contains(out, "42:00:00:00:00:01")
	assert.Contains(out, "connected")
	assert.Contains(out, "disconnected")
	assert.Contains(out, "legacy")
	assert.Contains(out, "02:00:00:00:01:01-42:00:00:00:00:01")

	bad := roamTrace + "expect 42:00:00:00:00:01 reconnected\n"
	assert.NoError(afero.WriteFile(AppFs, "/bad.trace", []byte(bad), 0644))
	out, err = runCmd(t, "replay", "/bad.trace")
	assert.Error(err)
	assert.Contains(err.Error(), "/bad.trace: line 10")
	// What happened before the failure is still reported
	assert.Contains(out, "disconnected")

	_, err = runCmd(t, "replay", "/missing.trace")
	assert.Error(err)
	assert.Contains(err.Error(), "opening trace")

	_, err = runCmd(t, "replay", "/roam.trace", "--oui-db", "/oui.txt")
	assert.Error(err)
	assert.Contains(err.Error(), "opening OUI database")

	_, err = runCmd(t, "replay")
	assert.Error(err)
}

func TestIEs(t *testing.T) {
	assert := require.New(t)

	out, err := runCmd(t, "ies", "00:05:62:6e:65:74", "3000")
	assert.NoError(err)
	assert.Contains(out, `ssid: "bgnet"`)
	assert.Contains(out, "modes: legacy")
	assert.Contains(out, "rsn: true")
	assert.Contains(out, "626e6574")

	_, err = runCmd(t, "ies", "zz")
	assert.Error(err)
	assert.Contains(err.Error(), "bad element buffer")

	// A truncated element still shows what came before it
	out, err = runCmd(t, "ies", "0005626e6574", "3004")
	assert.Error(err)
	assert.Contains(out, `ssid: "bgnet"`)
}

func TestOUIPath(t *testing.T) {
	assert := require.New(t)

	old, had := os.LookupEnv("APROOT")
	defer func() {
		if had {
			os.Setenv("APROOT", old)
		} else {
			os.Unsetenv("APROOT")
		}
	}()

	os.Unsetenv("APROOT")
	assert.Equal("", ouiPath(""))
	assert.Equal("/tmp/oui.txt", ouiPath("/tmp/oui.txt"))

	os.Setenv("APROOT", "/opt/ap")
	assert.Equal("/opt/ap/etc/oui.txt", ouiPath(""))
	assert.Equal("/tmp/oui.txt", ouiPath("/tmp/oui.txt"))
}

func TestVendorAndEvent(t *testing.T) {
	assert := require.New(t)

	sta := staassoc.MustParseAddr("00:22:72:00:00:01")
	db := fakeVendors{"00:22:72:00:00:01": "American Micro-Fuel Device Corp."}
	assert.Equal("-", vendor(nil, sta))
	assert.Equal("American Micro-Fuel Device Corp.", vendor(db, sta))
	assert.Equal("-", vendor(db, staassoc.MustParseAddr("42:00:00:00:00:01")))

	pb := &structpb.Struct{Fields: map[string]*structpb.Value{
		"timestamp": {Kind: &structpb.Value_StringValue{
			StringValue: "2020-06-01T12:00:00Z"}},
		"mac":   {Kind: &structpb.Value_NumberValue{NumberValue: float64(sta.Uint64())}},
		"event": {Kind: &structpb.Value_StringValue{StringValue: "connected"}},
		"mlo":   {Kind: &structpb.Value_BoolValue{BoolValue: false}},
		"modes": {Kind: &structpb.Value_StringValue{StringValue: "ax/ac/n"}},
	}}

	var out bytes.Buffer
	printEvent(&out, pb, db)
	s := out.String()
	assert.Contains(s, "2020-06-01T12:00:00Z 00:22:72:00:00:01")
	assert.Contains(s, "connected")
	assert.Contains(s, `vendor="American Micro-Fuel Device Corp."`)
	assert.Contains(s, "modes=ax/ac/n")

	filter, err := stationFilter("")
	assert.NoError(err)
	assert.True(matchEvent(pb, filter))

	filter, err = stationFilter("00:22:72:00:00:01")
	assert.NoError(err)
	assert.True(matchEvent(pb, filter))

	filter, err = stationFilter("42:00:00:00:00:01")
	assert.NoError(err)
	assert.False(matchEvent(pb, filter))

	_, err = stationFilter("not-a-mac")
	assert.Error(err)
}
