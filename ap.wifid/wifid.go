/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// ap.wifid tracks which stations are associated with the local radios.  It
// follows hostapd's per-interface control sockets and the kernel's view of
// the wireless interfaces, consolidates per-link reports into per-station
// entries, and publishes the resulting transitions.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bgsta/ap_common/aputil"
	"bgsta/ap_common/broker"
	"bgsta/ap_common/hostapd"
	"bgsta/ap_common/netctl"
	"bgsta/ap_common/staassoc"
	"bgsta/ap_common/stametrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomazk/envcfg"
	"go.uber.org/zap"
)

const (
	pname = "ap.wifid"

	// A hostapd connection that fails this often is left alone for a
	// while before we try again.
	failLimit   = 5
	failPeriod  = time.Minute
	failBackoff = 30 * time.Second
	retryDelay  = time.Second
)

var (
	slog    *zap.SugaredLogger
	environ Cfg
)

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// hostapdLoop keeps a control connection open to the hostapd instance
// serving vif, reconnecting whenever it fails.
func hostapdLoop(ctx context.Context, wg *sync.WaitGroup, dir, vif string,
	reports chan<- hostapd.Report) {

	defer wg.Done()

	var prev *hostapd.Conn

	pace := aputil.NewPaceTracker(failLimit, failPeriod)
	for ctx.Err() == nil {
		conn := hostapd.NewConn(dir, vif, reports, slog)
		if prev != nil {
			conn.Resume(prev)
		}
		prev = conn
		slog.Infof("%s: connecting to hostapd", vif)
		err := conn.Run(ctx)
		if ctx.Err() != nil {
			break
		}
		slog.Warnf("%s: hostapd connection lost: %v", vif, err)

		if err = pace.Tick(); err != nil {
			slog.Warnf("%s: hostapd failing too quickly (%v), backing off",
				vif, err)
			sleepCtx(ctx, failBackoff)
		} else {
			sleepCtx(ctx, retryDelay)
		}
	}
	slog.Debugf("%s: hostapd loop exiting", vif)
}

// SIGHUP dumps the station table; anything else shuts us down.
func signalHandler(cancel context.CancelFunc, d *daemon) {
	sig := make(chan os.Signal, 3)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for s := range sig {
		if s == syscall.SIGHUP {
			d.requestDump()
			continue
		}
		slog.Infof("Received signal %v", s)
		cancel()
		return
	}
}

func main() {
	flag.Parse()

	slog = aputil.NewLogger(pname)
	defer slog.Sync()

	if err := envcfg.Unmarshal(&environ); err != nil {
		slog.Fatalf("failed environment configuration: %v", err)
	}
	if environ.LogLevel != "" {
		if err := aputil.LogSetLevel(pname, environ.LogLevel); err != nil {
			slog.Warnf("bad log level '%s': %v", environ.LogLevel, err)
		}
	}
	slog.Infow(pname+" starting", "args", os.Args, "envcfg", environ)

	cfg, err := parseCfg(environ)
	if err != nil {
		slog.Fatalf("bad configuration: %v", err)
	}

	metrics := stametrics.New()
	if err = metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Fatalf("failed to register metrics: %v", err)
	}
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(cfg.promPort, nil)

	sched := staassoc.NewLoopScheduler(64)
	d := newDaemon(cfg, sched, metrics, slog)

	if cfg.publishURL != "" {
		b, err := broker.New(cfg.publishURL, pname, slog)
		if err != nil {
			slog.Fatalf("failed to start publisher: %v", err)
		}
		defer b.Fini()
		d.mgr.Observe(staassoc.Wildcard, broker.NewObserver(b, time.Now))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vifs, err := netctl.WatchLinks(ctx, cfg.vifNames(), slog)
	if err != nil {
		slog.Fatalf("failed to monitor interfaces: %v", err)
	}

	var wg sync.WaitGroup
	reports := make(chan hostapd.Report, 64)
	for _, v := range cfg.vifs {
		wg.Add(1)
		go hostapdLoop(ctx, &wg, cfg.hostapdDir, v.name, reports)
	}

	go signalHandler(cancel, d)
	d.run(ctx, reports, vifs)

	sched.Close()
	wg.Wait()
	slog.Infof("Cleaning up")
}
