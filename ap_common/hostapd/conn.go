/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package hostapd talks to hostapd's per-interface control sockets and turns
// its station messages into association reports.
package hostapd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bgsta/ap_common/staassoc"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReportKind distinguishes station reports from batch markers.
type ReportKind int

// A connection emits ReportBusy before it starts collecting a batch of station
// state, and ReportIdle once the batch has been delivered.
const (
	ReportSta ReportKind = iota
	ReportBusy
	ReportIdle
)

func (k ReportKind) String() string {
	switch k {
	case ReportSta:
		return "sta"
	case ReportBusy:
		return "busy"
	case ReportIdle:
		return "idle"
	}
	return "unknown"
}

// Report is one message from a Conn to the daemon's event loop.
type Report struct {
	Kind ReportKind
	Vif  string
	Sta  staassoc.StaReport // valid for ReportSta
}

// DefaultCmdTimeout bounds the time a single command may stay in flight.
const DefaultCmdTimeout = 2 * time.Second

var errClosed = errors.New("hostapd connection closed")

type hostapdCmd struct {
	cmd  string
	res  string
	err  chan error
	sent time.Time
}

// Conn is the control connection for one interface.  hostapd serves one
// command at a time, so we keep a single in-flight command and a queue of
// pending ones.
type Conn struct {
	Vif string

	remoteName string // hostapd's end of the control socket
	localName  string // ours
	reports    chan<- Report
	slog       *zap.SugaredLogger
	cmdTimeout time.Duration
	now        func() time.Time

	conn        *net.UnixConn
	active      bool
	quit        <-chan struct{}
	liveCmd     *hostapdCmd
	pendingCmds []*hostapdCmd
	jobs        []staJob
	jobReady    chan struct{}

	// Stations we have reported connected, with the association time we
	// gave for each.  Only the worker touches it.
	known map[string]time.Time

	sync.Mutex
}

type staJob struct {
	sta       net.HardwareAddr
	connected bool
}

// NewConn prepares a connection to the control socket hostapd creates for vif
// under dir.  Reports are delivered on the supplied channel.
func NewConn(dir, vif string, reports chan<- Report,
	slog *zap.SugaredLogger) *Conn {

	return &Conn{
		Vif:        vif,
		remoteName: filepath.Join(dir, vif),
		localName: filepath.Join(os.TempDir(),
			fmt.Sprintf("hostapd_ctrl_%s-%d", vif, os.Getpid())),
		reports:    reports,
		slog:       slog.With("vif", vif),
		cmdTimeout: DefaultCmdTimeout,
		now:        time.Now,
		active:     true,
		jobReady:   make(chan struct{}, 1),
		known:      make(map[string]time.Time),
	}
}

func (c *Conn) String() string {
	return c.Vif
}

// connect waits for hostapd to create its socket, then binds ours to it.
func (c *Conn) connect(ctx context.Context) error {
	laddr := net.UnixAddr{Name: c.localName, Net: "unixgram"}
	raddr := net.UnixAddr{Name: c.remoteName, Net: "unixgram"}

	for {
		if _, err := os.Stat(c.remoteName); err == nil {
			os.Remove(c.localName)
			conn, err := net.DialUnix("unixgram", &laddr, &raddr)
			if err == nil {
				c.Lock()
				c.conn = conn
				c.Unlock()
				return nil
			}
			c.slog.Debugf("dial %s: %v", c.remoteName, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// If we don't have a command in-flight, pull the next one from the pending
// queue and send it.  Called with the lock held.
func (c *Conn) pushCmd() {
	for c.liveCmd == nil && len(c.pendingCmds) > 0 && c.conn != nil {
		l := c.pendingCmds[0]
		c.pendingCmds = c.pendingCmds[1:]

		l.sent = c.now()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, err := c.conn.Write([]byte(l.cmd)); err != nil {
			l.err <- errors.Wrapf(err, "sending '%s' to %s", l.cmd, c)
		} else {
			c.liveCmd = l
		}
	}
}

// Command sends one command and waits for hostapd's reply.
func (c *Conn) Command(cmd string) (string, error) {
	hc := &hostapdCmd{
		cmd: cmd,
		err: make(chan error, 1),
	}

	c.Lock()
	if !c.active {
		c.Unlock()
		return "", errClosed
	}
	c.pendingCmds = append(c.pendingCmds, hc)
	c.pushCmd()
	c.Unlock()

	err := <-hc.err
	return hc.res, err
}

// Called with the lock held.
func (c *Conn) clearCmds() {
	if c.liveCmd != nil {
		c.liveCmd.err <- errClosed
		c.liveCmd = nil
	}
	for _, l := range c.pendingCmds {
		l.err <- errClosed
	}
	c.pendingCmds = nil
}

// Use a result message from hostapd to complete the current outstanding
// command.  Called with the lock held.
func (c *Conn) handleResult(result string) {
	if c.liveCmd == nil {
		c.slog.Warnf("hostapd result with no command: '%s'", result)
		return
	}
	c.liveCmd.res = result
	c.liveCmd.err <- nil
	c.liveCmd = nil
}

// Called with the lock held.
func (c *Conn) expireCmd() {
	if c.liveCmd == nil {
		return
	}
	if delta := c.now().Sub(c.liveCmd.sent); delta > c.cmdTimeout {
		c.slog.Warnf("'%s' unanswered for %1.2f seconds",
			c.liveCmd.cmd, delta.Seconds())
		c.liveCmd.err <- errors.Errorf("'%s' timed out", c.liveCmd.cmd)
		c.liveCmd = nil
	}
}

// emit delivers a report.  Reports still flow after the socket fails, so
// every Busy is matched by an Idle; only cancellation of the whole run drops
// them.
func (c *Conn) emit(r Report) {
	r.Vif = c.Vif
	select {
	case c.reports <- r:
	case <-c.quit:
	}
}

// connectedAt derives the association time hostapd implies.  connected_time
// only has whole seconds, so two queries of one association can disagree by a
// second; the first answer sticks for as long as the station stays connected.
func (c *Conn) connectedAt(info StaInfo) time.Time {
	at := info.ConnectedAt(c.now()).Truncate(time.Second)
	key := info.Addr.String()
	if prev, ok := c.known[key]; ok {
		if d := at.Sub(prev); d >= -time.Second && d <= time.Second {
			return prev
		}
	}
	c.known[key] = at
	return at
}

func (c *Conn) staReport(info StaInfo) staassoc.StaReport {
	r := staassoc.StaReport{
		Vif:         c.Vif,
		Addr:        staassoc.AddrFromHW(info.Addr),
		Elements:    info.Elements,
		Connected:   true,
		ConnectedAt: c.connectedAt(info),
	}
	if info.MLDAddr != nil {
		r.MLDAddr = staassoc.AddrFromHW(info.MLDAddr)
	}
	return r
}

// stationPresent fetches the details of a newly connected station.  The
// station may be gone again by the time hostapd answers; its disconnect is
// queued behind us.
func (c *Conn) stationPresent(sta net.HardwareAddr) {
	c.emit(Report{Kind: ReportBusy})
	defer c.emit(Report{Kind: ReportIdle})

	reply, err := c.Command("STA " + sta.String())
	if err != nil {
		c.slog.Warnf("STA %s failed: %v", sta, err)
		return
	}
	info, err := ParseStaInfo(reply)
	if err != nil {
		c.slog.Infof("station %s vanished: %v", sta, err)
		return
	}
	c.emit(Report{Kind: ReportSta, Sta: c.staReport(info)})
}

func (c *Conn) stationGone(sta net.HardwareAddr) {
	delete(c.known, sta.String())
	c.emit(Report{
		Kind: ReportSta,
		Sta: staassoc.StaReport{
			Vif:  c.Vif,
			Addr: staassoc.AddrFromHW(sta),
		},
	})
}

// sweep reports every station hostapd already knows about, so a restarted
// daemon doesn't have to wait for the next association.  Stations we reported
// over an earlier connection that hostapd no longer lists left while we
// weren't looking.
func (c *Conn) sweep() {
	c.emit(Report{Kind: ReportBusy})
	defer c.emit(Report{Kind: ReportIdle})

	seen := make(map[string]bool)
	cmd := "STA-FIRST"
	for {
		reply, err := c.Command(cmd)
		if err != nil {
			c.slog.Warnf("%s failed: %v", cmd, err)
			return
		}
		info, err := ParseStaInfo(reply)
		if err != nil {
			break
		}
		seen[info.Addr.String()] = true
		c.emit(Report{Kind: ReportSta, Sta: c.staReport(info)})
		cmd = "STA-NEXT " + info.Addr.String()
	}
	c.slog.Debugf("sweep found %d stations", len(seen))

	for key := range c.known {
		if seen[key] {
			continue
		}
		sta, err := net.ParseMAC(key)
		if err != nil {
			delete(c.known, key)
			continue
		}
		c.slog.Infof("station %s left while disconnected", sta)
		c.stationGone(sta)
	}
}

// queue hands station work to the worker.  Called without the lock held.
func (c *Conn) queue(sta net.HardwareAddr, connected bool) {
	c.Lock()
	c.jobs = append(c.jobs, staJob{sta: sta, connected: connected})
	c.Unlock()

	select {
	case c.jobReady <- struct{}{}:
	default:
	}
}

// worker attaches, sweeps, and then handles station messages strictly in the
// order hostapd sent them.  Once stop is closed it drains whatever is still
// queued and returns.
func (c *Conn) worker(stop <-chan struct{}) {
	if _, err := c.Command("ATTACH"); err != nil {
		c.slog.Warnf("ATTACH failed: %v", err)
	} else {
		c.sweep()
	}

	stopping := false
	for {
		c.Lock()
		jobs := c.jobs
		c.jobs = nil
		c.Unlock()

		for _, j := range jobs {
			if j.connected {
				c.stationPresent(j.sta)
			} else {
				c.stationGone(j.sta)
			}
		}
		if len(jobs) > 0 {
			continue
		}
		if stopping {
			return
		}

		select {
		case <-c.jobReady:
		case <-stop:
			stopping = true
		}
	}
}

// Handle an unsolicited status message.  Called without the lock held.
func (c *Conn) handleStatus(msg string) {
	s, ok := ParseStatus(msg)
	if !ok {
		c.slog.Debugf("ignoring '%s'", msg)
		return
	}

	c.slog.Infof("%v %s", s.Kind, s.Addr)
	switch s.Kind {
	case StaConnected:
		c.queue(s.Addr, true)
	case StaDisconnected:
		c.queue(s.Addr, false)
	}
}

// Resume carries the stations reported over prev into this connection, so
// the first sweep can retire the ones that left in between.  prev's Run must
// have returned.
func (c *Conn) Resume(prev *Conn) {
	for key, at := range prev.known {
		c.known[key] = at
	}
}

// Stop closes the socket, which interrupts any pending read or write.
func (c *Conn) Stop() {
	c.Lock()
	c.active = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.Unlock()
}

// Run connects to hostapd, attaches to its event stream and processes
// messages until the context is cancelled, Stop is called or the socket
// fails.
func (c *Conn) Run(ctx context.Context) error {
	c.quit = ctx.Done()
	if err := c.connect(ctx); err != nil {
		return errors.Wrapf(err, "connecting to %s", c.remoteName)
	}
	defer os.Remove(c.localName)

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	stop := make(chan struct{})
	workerDone := make(chan struct{})
	go func() {
		c.worker(stop)
		close(workerDone)
	}()

	var rval error
	buf := make([]byte, 4096)
	c.Lock()
	for c.active {
		c.pushCmd()
		conn := c.conn
		c.Unlock()

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)

		if err != nil {
			// We expect this read to time out regularly
			netErr, ok := err.(net.Error)
			if !ok || !netErr.Timeout() {
				c.Lock()
				if c.active {
					rval = errors.Wrapf(err, "reading from %s", c)
				}
				break
			}
		}

		// hostapd prefaces unsolicited messages with <N>
		if n > 0 && buf[0] == '<' {
			c.handleStatus(strings.TrimSpace(string(buf[:n])))
		}

		c.Lock()
		if n > 0 && buf[0] != '<' {
			c.handleResult(string(buf[:n]))
		}
		c.expireCmd()
	}
	c.active = false
	c.clearCmds()
	c.Unlock()

	close(stop)
	<-workerDone

	return rval
}
