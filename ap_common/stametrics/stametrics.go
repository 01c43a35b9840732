/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package stametrics exports the station association state to prometheus.
package stametrics

import (
	"sync"

	"bgsta/ap_common/staassoc"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes every station transition and keeps a snapshot of the
// manager's bookkeeping for the scraper.  StationChanged and Update must be
// called from the goroutine that owns the manager; Collect may run anywhere.
type Metrics struct {
	events    *prometheus.CounterVec
	connected prometheus.Gauge
	mlo       prometheus.Gauge

	entries   *prometheus.Desc
	links     *prometheus.Desc
	vifs      *prometheus.Desc
	observers *prometheus.Desc
	recalcs   *prometheus.Desc
	notifies  *prometheus.Desc

	stats staassoc.Stats
	sync.Mutex
}

// New allocates the metrics.  Nothing is exported until Register.
func New() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sta_assoc_events",
				Help: "Station transitions delivered, by event.",
			},
			[]string{"event"}),
		connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sta_assoc_connected",
				Help: "Number of stations currently connected.",
			}),
		mlo: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sta_assoc_mlo_connected",
				Help: "Number of connected stations using multiple links.",
			}),
		entries: prometheus.NewDesc("sta_assoc_entries",
			"Number of station entries.", nil, nil),
		links: prometheus.NewDesc("sta_assoc_links",
			"Number of per-link records.", nil, nil),
		vifs: prometheus.NewDesc("sta_assoc_vifs",
			"Number of tracked interfaces.", nil, nil),
		observers: prometheus.NewDesc("sta_assoc_observers",
			"Number of registered observers.", nil, nil),
		recalcs: prometheus.NewDesc("sta_assoc_recalcs",
			"Number of entry recalculations.", nil, nil),
		notifies: prometheus.NewDesc("sta_assoc_notifications",
			"Number of transitions fanned out to observers.", nil, nil),
	}
}

// Register adds all of the metrics to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.events, m.connected, m.mlo, m} {
		if err := r.Register(c); err != nil {
			return err
		}
	}

	// Make every label visible from the first scrape
	for _, ev := range staassoc.Events {
		m.events.WithLabelValues(ev.String())
	}
	return nil
}

// StationChanged implements staassoc.Observer.
func (m *Metrics) StationChanged(e *staassoc.Entry, ev staassoc.Event) {
	m.events.WithLabelValues(ev.String()).Inc()
}

// Update records a fresh snapshot of the manager's bookkeeping.
func (m *Metrics) Update(s staassoc.Stats) {
	m.connected.Set(float64(s.Connected))
	m.mlo.Set(float64(s.MLO))

	m.Lock()
	m.stats = s
	m.Unlock()
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.entries
	ch <- m.links
	ch <- m.vifs
	ch <- m.observers
	ch <- m.recalcs
	ch <- m.notifies
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Lock()
	s := m.stats
	m.Unlock()

	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue,
			float64(v))
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue,
			float64(v))
	}

	gauge(m.entries, s.Entries)
	gauge(m.links, s.Links)
	gauge(m.vifs, s.Vifs)
	gauge(m.observers, s.Observers)
	counter(m.recalcs, s.Recalcs)
	counter(m.notifies, s.Notifications)
}
