/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package statrace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bgsta/ap_common/staassoc"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func playFile(t *testing.T, name string) *Player {
	assert := require.New(t)

	f, err := os.Open(filepath.Join("testdata", name))
	assert.NoError(err)
	defer f.Close()

	trace, err := Parse(f)
	assert.NoError(err)

	p := NewPlayer(staassoc.DefaultConfig(), zaptest.NewLogger(t).Sugar())
	assert.NoError(p.Play(trace))
	return p
}

func TestMLORoamTrace(t *testing.T) {
	assert := require.New(t)

	p := playFile(t, "mlo_roam.trace")
	assert.Len(p.Notifications, 4)
	assert.Equal([]byte("\x00\x05bgnet"), p.Notifications[0].Elements)
	assert.Equal(time.Duration(0), p.Notifications[0].At)
	assert.Equal(10*time.Second+500*time.Millisecond,
		p.Notifications[1].At)

	stats := p.Mgr.Stats()
	assert.Equal(0, stats.Entries)
	assert.Equal(0, stats.Links)
}

func TestLastBreathTrace(t *testing.T) {
	assert := require.New(t)

	p := playFile(t, "last_breath.trace")
	assert.Len(p.Notifications, 3)

	stats := p.Mgr.Stats()
	assert.Equal(1, stats.Vifs)
	assert.Equal(1, stats.Links)
	assert.Equal(1, stats.Connected)
}

func TestParse(t *testing.T) {
	assert := require.New(t)

	trace, err := Parse(strings.NewReader(`
		# comment
		vif wlan0 02:00:00:00:01:01 mld=02:00:00:00:0f:02  # trailing
		sta wlan0 42:00:00:00:00:01 connected at=1500ms ies=0001ff
		advance 2s
		observe *
		unobserve 42:00:00:00:00:01
		expect 42:00:00:00:00:01 reconnected stale=1 mlo=true
	`))
	assert.NoError(err)
	assert.Len(trace, 6)

	assert.Equal(OpVif, trace[0].Op)
	assert.Equal(3, trace[0].Line)
	assert.Equal("wlan0", trace[0].Vif)
	assert.Equal(staassoc.MustParseAddr("02:00:00:00:0f:02"), trace[0].MLD)

	sta := trace[1]
	assert.Equal(OpSta, sta.Op)
	assert.True(sta.Connected)
	assert.True(sta.HasAt)
	assert.Equal(1500*time.Millisecond, sta.At)
	assert.Equal([]byte{0x00, 0x01, 0xff}, sta.Elements)

	assert.Equal(2*time.Second, trace[2].Duration)
	assert.Equal(staassoc.Wildcard, trace[3].Addr)
	assert.Equal(OpUnobserve, trace[4].Op)

	exp := trace[5]
	assert.Equal(staassoc.Reconnected, exp.Event)
	assert.Equal(-1, exp.Active)
	assert.Equal(1, exp.Stale)
	assert.True(*exp.MLO)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		line string
		msg  string
	}{
		{"frobnicate", "unknown directive"},
		{"vif wlan0", "takes 2 arguments"},
		{"vif wlan0 bogus", "line 1"},
		{"sta wlan0 42:00:00:00:00:01 sideways", "bad station state"},
		{"sta wlan0 42:00:00:00:00:01 connected at=soon", "bad at"},
		{"sta wlan0 42:00:00:00:00:01 connected ies=xyz", "bad ies"},
		{"sta wlan0 42:00:00:00:00:01 connected mld=42", "bad mld"},
		{"advance -1s", "negative advance"},
		{"expect 42:00:00:00:00:01 exploded", "unknown event"},
		{"expect 42:00:00:00:00:01 connected active=two", "bad active"},
		{"busy now", "takes 0 arguments"},
	}

	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			assert := require.New(t)
			_, err := Parse(strings.NewReader(tc.line))
			assert.Error(err)
			assert.Contains(err.Error(), tc.msg)
		})
	}
}

func TestPlayerFailures(t *testing.T) {
	assert := require.New(t)
	slog := zaptest.NewLogger(t).Sugar()

	run := func(text string) error {
		trace, err := Parse(strings.NewReader(text))
		assert.NoError(err)
		return NewPlayer(staassoc.DefaultConfig(), slog).Play(trace)
	}

	err := run("unobserve *")
	assert.Error(err)
	assert.Contains(err.Error(), "no observer")

	err = run("expect 42:00:00:00:00:01 connected")
	assert.Error(err)
	assert.Contains(err.Error(), "got nothing")

	err = run(`
		vif wlan0 02:00:00:00:01:01
		observe *
		sta wlan0 42:00:00:00:00:01 connected
		advance 1s
		expect 42:00:00:00:00:01 connected active=2
	`)
	assert.Error(err)
	assert.Contains(err.Error(), "line 6")
}
