/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package main

import (
	"context"

	"bgsta/ap_common/hostapd"
	"bgsta/ap_common/netctl"
	"bgsta/ap_common/staassoc"
	"bgsta/ap_common/stametrics"
	"bgsta/common/wifi"

	"go.uber.org/zap"
)

// daemon owns the association Manager.  Every call into the Manager happens
// on the goroutine running daemon.run.
type daemon struct {
	mgr     *staassoc.Manager
	sched   *staassoc.LoopScheduler
	metrics *stametrics.Metrics
	mlds    map[string]staassoc.Addr
	slog    *zap.SugaredLogger

	// Each hostapd connection brackets its batches with Busy/Idle.  The
	// Manager only goes idle once all of them have finished.
	busy int

	dumpReq chan struct{}
}

func newDaemon(cfg *wifidConfig, sched *staassoc.LoopScheduler,
	metrics *stametrics.Metrics, slog *zap.SugaredLogger) *daemon {

	d := &daemon{
		mgr:     staassoc.New(cfg.assoc, sched, slog),
		sched:   sched,
		metrics: metrics,
		mlds:    cfg.mlds(),
		slog:    slog,
		dumpReq: make(chan struct{}, 1),
	}

	d.mgr.Observe(staassoc.Wildcard, metrics)
	d.mgr.Observe(staassoc.Wildcard, staassoc.ObserverFunc(d.logChange))
	return d
}

func (d *daemon) logChange(e *staassoc.Entry, ev staassoc.Event) {
	fields := []interface{}{
		"sta", e.Addr(),
		"active", e.ActiveLinks(),
		"stale", e.StaleLinks(),
	}
	if mld, ok := e.LocalMLDAddr(); ok {
		fields = append(fields, "ap_mld", mld)
	}
	if ies := e.AssocElements(); len(ies) > 0 {
		caps, err := wifi.Summarize(ies)
		if err != nil {
			d.slog.Debugf("%s: bad association elements: %v", e.Addr(), err)
		} else {
			fields = append(fields, "ssid", caps.SSID, "modes", caps.Modes())
		}
	}
	d.slog.Infow("station "+ev.String(), fields...)
}

func (d *daemon) handleReport(r hostapd.Report) {
	switch r.Kind {
	case hostapd.ReportBusy:
		d.busy++
		if d.busy == 1 {
			d.mgr.Busy()
		}

	case hostapd.ReportIdle:
		if d.busy == 0 {
			d.slog.Warnf("%s: idle without busy", r.Vif)
			return
		}
		d.busy--
		if d.busy == 0 {
			d.mgr.Idle()
		}

	case hostapd.ReportSta:
		d.mgr.StaReport(r.Sta)
	}
}

func (d *daemon) handleVif(u netctl.VifUpdate) {
	var mld staassoc.Addr

	addr := staassoc.AddrFromHW(u.Addr)
	if !addr.IsZero() {
		mld = d.mlds[u.Name]
	}
	d.slog.Infof("interface %v", u)
	d.mgr.VifReport(u.Name, addr, mld)
}

// requestDump asks the event loop to log every station entry.  Requests made
// while one is already queued are dropped.
func (d *daemon) requestDump() {
	select {
	case d.dumpReq <- struct{}{}:
	default:
	}
}

func (d *daemon) dump() {
	s := d.mgr.Stats()
	d.slog.Infof("%d vifs, %d links, %d entries (%d connected, %d mlo), busy=%v",
		s.Vifs, s.Links, s.Entries, s.Connected, s.MLO, s.Busy)

	for _, e := range d.mgr.Entries() {
		d.slog.Infof("  %s connected=%v mlo=%v active=%v stale=%v",
			e.Addr(), e.IsConnected(), e.IsMLO(), e.ActiveLinks(),
			e.StaleLinks())
	}
}

// run processes timer expirations, hostapd reports and interface changes
// until ctx is cancelled.
func (d *daemon) run(ctx context.Context, reports <-chan hostapd.Report,
	vifs <-chan netctl.VifUpdate) {

	for {
		select {
		case <-ctx.Done():
			return

		case f := <-d.sched.Fires():
			f()

		case r := <-reports:
			d.handleReport(r)

		case u, ok := <-vifs:
			if !ok {
				d.slog.Warnf("interface monitor exited")
				vifs = nil
				continue
			}
			d.handleVif(u)

		case <-d.dumpReq:
			d.dump()
		}

		d.metrics.Update(d.mgr.Stats())
	}
}
