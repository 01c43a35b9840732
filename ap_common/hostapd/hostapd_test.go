/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package hostapd

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bgsta/ap_common/staassoc"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const staReply = `42:00:00:00:00:01
flags=[AUTH][ASSOC][AUTHORIZED]
aid=1
connected_time=5
mld_addr=42:00:00:00:0f:01
assoc_ie=000362676e
`

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		msg    string
		ok     bool
		kind   StatusKind
		addr   string
		params map[string]string
	}{
		{"<3>AP-STA-CONNECTED 42:00:00:00:00:01", true, StaConnected,
			"42:00:00:00:00:01", map[string]string{}},
		{"<3>AP-STA-DISCONNECTED 42:00:00:00:00:0A", true, StaDisconnected,
			"42:00:00:00:00:0a", map[string]string{}},
		{"AP-STA-CONNECTED 42:00:00:00:00:01 keyid=3 junk", true,
			StaConnected, "42:00:00:00:00:01",
			map[string]string{"keyid": "3"}},
		{"<3>AP-STA-POLL-OK 42:00:00:00:00:01", false, 0, "", nil},
		{"<3>AP-STA-CONNECTED", false, 0, "", nil},
		{"CTRL-EVENT-EAP-SUCCESS2 42:00:00:00:00:01 user", false, 0, "", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.msg, func(t *testing.T) {
			assert := require.New(t)
			s, ok := ParseStatus(tc.msg)
			assert.Equal(tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(tc.kind, s.Kind)
			assert.Equal(tc.addr, s.Addr.String())
			assert.Equal(tc.params, s.Params)
		})
	}
}

func TestParseStaInfo(t *testing.T) {
	assert := require.New(t)

	info, err := ParseStaInfo(staReply)
	assert.NoError(err)
	assert.Equal("42:00:00:00:00:01", info.Addr.String())
	assert.Equal("42:00:00:00:0f:01", info.MLDAddr.String())
	assert.Equal(5*time.Second, info.ConnectedTime)
	assert.Equal([]byte{0x00, 0x03, 'b', 'g', 'n'}, info.Elements)
	assert.True(info.Authorized())
	assert.Equal("1", info.Params["aid"])

	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(now.Add(-5*time.Second), info.ConnectedAt(now))

	info, err = ParseStaInfo("42:00:00:00:00:02\nflags=[AUTH]\n" +
		"peer_mld_addr=00:00:00:00:00:00\n")
	assert.NoError(err)
	assert.Nil(info.MLDAddr)
	assert.Nil(info.Elements)
	assert.False(info.Authorized())

	for _, bad := range []string{
		"FAIL\n",
		"",
		"not-a-mac\n",
		"42:00:00:00:00:01\nconnected_time=soon\n",
		"42:00:00:00:00:01\nmld_addr=42:00\n",
		"42:00:00:00:00:01\nassoc_ie=zz\n",
	} {
		_, err = ParseStaInfo(bad)
		assert.Error(err, bad)
	}
}

// fakeHostapd answers control commands from a canned table.
type fakeHostapd struct {
	conn    *net.UnixConn
	replies map[string]string
	follow  map[string]string // pushed right after the reply
	cmds    chan string

	client *net.UnixAddr
	sync.Mutex
}

func newFakeHostapd(t *testing.T, path string) *fakeHostapd {
	conn, err := net.ListenUnixgram("unixgram",
		&net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)

	f := &fakeHostapd{
		conn:    conn,
		replies: make(map[string]string),
		follow:  make(map[string]string),
		cmds:    make(chan string, 32),
	}
	go f.serve()
	return f
}

func (f *fakeHostapd) serve() {
	buf := make([]byte, 4096)
	for {
		n, addr, err := f.conn.ReadFromUnix(buf)
		if err != nil {
			return
		}
		cmd := string(buf[:n])

		f.Lock()
		f.client = addr
		reply, ok := f.replies[cmd]
		msg := f.follow[cmd]
		f.Unlock()
		if !ok {
			reply = "FAIL\n"
		}
		f.conn.WriteToUnix([]byte(reply), addr)
		if msg != "" {
			f.conn.WriteToUnix([]byte(msg), addr)
		}
		f.cmds <- cmd
	}
}

func (f *fakeHostapd) setReply(cmd, reply string) {
	f.Lock()
	if reply == "" {
		delete(f.replies, cmd)
	} else {
		f.replies[cmd] = reply
	}
	f.Unlock()
}

func (f *fakeHostapd) unsolicited(t *testing.T, msg string) {
	f.Lock()
	client := f.client
	f.Unlock()
	_, err := f.conn.WriteToUnix([]byte(msg), client)
	require.NoError(t, err)
}

func nextReport(t *testing.T, reports <-chan Report) Report {
	select {
	case r := <-reports:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no report from hostapd connection")
	}
	return Report{}
}

func TestConn(t *testing.T) {
	assert := require.New(t)

	dir, err := ioutil.TempDir("", "hostapd")
	assert.NoError(err)
	defer os.RemoveAll(dir)

	fake := newFakeHostapd(t, filepath.Join(dir, "wlan0"))
	defer fake.conn.Close()
	fake.replies["ATTACH"] = "OK\n"
	fake.replies["STA 42:00:00:00:00:01"] = staReply

	reports := make(chan Report, 16)
	c := NewConn(dir, "wlan0", reports, zaptest.NewLogger(t).Sugar())
	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Attach, followed by an empty sweep
	assert.Equal(ReportBusy, nextReport(t, reports).Kind)
	assert.Equal(ReportIdle, nextReport(t, reports).Kind)
	assert.Equal("ATTACH", <-fake.cmds)
	assert.Equal("STA-FIRST", <-fake.cmds)

	fake.unsolicited(t, "<3>AP-STA-CONNECTED 42:00:00:00:00:01")
	assert.Equal(ReportBusy, nextReport(t, reports).Kind)
	r := nextReport(t, reports)
	assert.Equal(ReportSta, r.Kind)
	assert.Equal(staassoc.StaReport{
		Vif:         "wlan0",
		Addr:        staassoc.MustParseAddr("42:00:00:00:00:01"),
		MLDAddr:     staassoc.MustParseAddr("42:00:00:00:0f:01"),
		Elements:    []byte{0x00, 0x03, 'b', 'g', 'n'},
		Connected:   true,
		ConnectedAt: now.Add(-5 * time.Second),
	}, r.Sta)
	assert.Equal(ReportIdle, nextReport(t, reports).Kind)

	fake.unsolicited(t, "<3>AP-STA-DISCONNECTED 42:00:00:00:00:01")
	r = nextReport(t, reports)
	assert.Equal(ReportSta, r.Kind)
	assert.False(r.Sta.Connected)
	assert.Equal(staassoc.MustParseAddr("42:00:00:00:00:01"), r.Sta.Addr)

	cancel()
	select {
	case err = <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("connection didn't shut down")
	}

	_, err = c.Command("PING")
	assert.Error(err)
}

// startConn runs c in the background.  The returned function cancels it and
// waits for Run to return.
func startConn(t *testing.T, c *Conn) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("connection didn't shut down")
		}
	}
}

func TestConnDisconnectDuringQuery(t *testing.T) {
	assert := require.New(t)

	dir, err := ioutil.TempDir("", "hostapd")
	assert.NoError(err)
	defer os.RemoveAll(dir)

	fake := newFakeHostapd(t, filepath.Join(dir, "wlan0"))
	defer fake.conn.Close()
	fake.replies["ATTACH"] = "OK\n"
	fake.replies["STA 42:00:00:00:00:01"] = staReply
	fake.follow["STA 42:00:00:00:00:01"] =
		"<3>AP-STA-DISCONNECTED 42:00:00:00:00:01"

	reports := make(chan Report, 16)
	c := NewConn(dir, "wlan0", reports, zaptest.NewLogger(t).Sugar())
	stop := startConn(t, c)
	defer stop()

	assert.Equal(ReportBusy, nextReport(t, reports).Kind)
	assert.Equal(ReportIdle, nextReport(t, reports).Kind)
	assert.Equal("ATTACH", <-fake.cmds)
	assert.Equal("STA-FIRST", <-fake.cmds)

	// The station leaves before we have digested its details.  The
	// disconnect must still be the last word.
	fake.unsolicited(t, "<3>AP-STA-CONNECTED 42:00:00:00:00:01")
	assert.Equal(ReportBusy, nextReport(t, reports).Kind)
	r := nextReport(t, reports)
	assert.Equal(ReportSta, r.Kind)
	assert.True(r.Sta.Connected)
	assert.Equal(ReportIdle, nextReport(t, reports).Kind)

	r = nextReport(t, reports)
	assert.Equal(ReportSta, r.Kind)
	assert.False(r.Sta.Connected)
	assert.Equal(staassoc.MustParseAddr("42:00:00:00:00:01"), r.Sta.Addr)

	select {
	case r = <-reports:
		t.Fatalf("unexpected report %v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnResume(t *testing.T) {
	assert := require.New(t)

	dir, err := ioutil.TempDir("", "hostapd")
	assert.NoError(err)
	defer os.RemoveAll(dir)

	fake := newFakeHostapd(t, filepath.Join(dir, "wlan0"))
	defer fake.conn.Close()
	fake.setReply("ATTACH", "OK\n")
	fake.setReply("STA-FIRST", staReply)

	sta := staassoc.MustParseAddr("42:00:00:00:00:01")
	base := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	reports := make(chan Report, 16)
	sweep := func(c *Conn, at time.Duration) staassoc.StaReport {
		c.now = func() time.Time { return base.Add(at) }
		stop := startConn(t, c)
		defer stop()

		assert.Equal(ReportBusy, nextReport(t, reports).Kind)
		r := nextReport(t, reports)
		assert.Equal(ReportSta, r.Kind)
		assert.Equal(sta, r.Sta.Addr)
		assert.Equal(ReportIdle, nextReport(t, reports).Kind)
		return r.Sta
	}

	// The station associated at base+100.5s.  hostapd only counts whole
	// seconds, so the two sweeps see connected_time=5 at different
	// fractions of a second.
	c1 := NewConn(dir, "wlan0", reports, zaptest.NewLogger(t).Sugar())
	r := sweep(c1, 105900*time.Millisecond)
	assert.True(r.Connected)
	assert.Equal(base.Add(100*time.Second), r.ConnectedAt)

	c2 := NewConn(dir, "wlan0", reports, zaptest.NewLogger(t).Sugar())
	c2.Resume(c1)
	r = sweep(c2, 106200*time.Millisecond)
	assert.True(r.Connected)
	assert.Equal(base.Add(100*time.Second), r.ConnectedAt)

	// It left while we were reconnecting
	fake.setReply("STA-FIRST", "")
	c3 := NewConn(dir, "wlan0", reports, zaptest.NewLogger(t).Sugar())
	c3.Resume(c2)
	r = sweep(c3, 200*time.Second)
	assert.False(r.Connected)

	// Nothing left to retire
	c4 := NewConn(dir, "wlan0", reports, zaptest.NewLogger(t).Sugar())
	c4.Resume(c3)
	c4.now = func() time.Time { return base.Add(300 * time.Second) }
	stop := startConn(t, c4)
	assert.Equal(ReportBusy, nextReport(t, reports).Kind)
	assert.Equal(ReportIdle, nextReport(t, reports).Kind)
	stop()
}

func TestConnectedAtReassociation(t *testing.T) {
	assert := require.New(t)

	reports := make(chan Report, 1)
	c := NewConn("/nonexistent", "wlan0", reports,
		zaptest.NewLogger(t).Sugar())
	info, err := ParseStaInfo(staReply)
	assert.NoError(err)

	base := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base.Add(105900 * time.Millisecond) }
	first := c.connectedAt(info)
	assert.Equal(base.Add(100*time.Second), first)

	c.now = func() time.Time { return base.Add(106200 * time.Millisecond) }
	assert.Equal(first, c.connectedAt(info))

	// Same connected_time a minute later: a new association
	c.now = func() time.Time { return base.Add(166 * time.Second) }
	assert.Equal(base.Add(161*time.Second), c.connectedAt(info))

	c.stationGone(info.Addr)
	_, ok := c.known[info.Addr.String()]
	assert.False(ok)
	assert.False((<-reports).Sta.Connected)
}

func TestConnCancelledBeforeConnect(t *testing.T) {
	assert := require.New(t)

	reports := make(chan Report, 1)
	c := NewConn("/nonexistent", "wlan9", reports,
		zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithTimeout(context.Background(),
		200*time.Millisecond)
	defer cancel()
	assert.Error(c.Run(ctx))
}
