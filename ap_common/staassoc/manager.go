/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package staassoc consolidates the per-radio, per-link association reports
// of the driver layer into a single, debounced view of each station: is it
// connected, and over which links.
//
// A station is identified by its MLD address when it associates with
// multi-link operation, and by its own address otherwise.  Reports arrive per
// (interface, station address) pair, possibly out of order and in bursts
// while a roam or a multi-link setup is in progress.  Each change re-arms a
// short settle timer on the station's entry, and arms a longer deadline timer
// once per burst.  When either expires, the entry's links are partitioned
// into active and stale sets and observers are told what happened.
//
// The Manager is not safe for concurrent use.  Every call, including the
// timer callbacks delivered through its Scheduler, must be made from the one
// goroutine that owns it.
package staassoc

import (
	"sort"

	"go.uber.org/zap"
)

type busyState int

const (
	stateIdle busyState = iota
	stateBusy
)

// pendingRecalc is an entry whose deadline expired while the driver was busy.
type pendingRecalc struct {
	key Addr
	seq uint64
}

// Manager owns every interface, link record, entry and observer.
type Manager struct {
	cfg   Config
	sched Scheduler
	slog  *zap.SugaredLogger

	vifs      map[string]*vif
	links     map[linkID]*linkRecord
	entries   map[Addr]*Entry
	observers map[ObserverID]*observer

	nextLink     linkID
	nextEntry    uint64
	nextObserver ObserverID

	state   busyState
	pending []pendingRecalc

	recalcs       uint64
	notifications uint64
}

// Stats is a snapshot of the Manager's bookkeeping.
type Stats struct {
	Vifs          int
	Links         int
	Entries       int // not counting the wildcard entry
	Connected     int
	MLO           int
	Observers     int
	Busy          bool
	Recalcs       uint64
	Notifications uint64
}

// New allocates a Manager.  Zero fields in cfg take their defaults.
func New(cfg Config, sched Scheduler, slog *zap.SugaredLogger) *Manager {
	if slog == nil {
		slog = zap.NewNop().Sugar()
	}

	return &Manager{
		cfg:       cfg.withDefaults(),
		sched:     sched,
		slog:      slog,
		vifs:      make(map[string]*vif),
		links:     make(map[linkID]*linkRecord),
		entries:   make(map[Addr]*Entry),
		observers: make(map[ObserverID]*observer),
	}
}

// Config returns the configuration in effect.
func (m *Manager) Config() Config {
	return m.cfg
}

// StaReport records a connect, change or disconnect of one station link.  A
// report identical to the previous one for the same link is a no-op.
func (m *Manager) StaReport(r StaReport) {
	if m == nil {
		return
	}
	if r.Vif == "" || r.Addr.IsZero() {
		m.slog.Warnf("ignoring malformed station report: %v", r)
		return
	}

	v := m.vifGetOrCreate(r.Vif)
	m.linkUpdate(v, r)
	m.vifGC(v)
}

// VifReport records the hardware and MLD addresses of a local interface.  A
// zero addr means the interface has gone away; any links it still carries
// are detached from their stations.
func (m *Manager) VifReport(name string, addr, mldAddr Addr) {
	if m == nil {
		return
	}
	if name == "" {
		m.slog.Warnf("ignoring interface report without a name")
		return
	}

	v := m.vifGetOrCreate(name)
	m.vifSetAddrs(v, addr, mldAddr)
	m.vifGC(v)
}

// Busy marks the start of a batch of related reports.  Deadline timers which
// expire until the matching Idle are deferred.
func (m *Manager) Busy() {
	if m == nil {
		return
	}
	if m.state != stateBusy {
		m.slog.Debugf("driver busy")
	}
	m.state = stateBusy
}

// Idle marks the end of a batch.  Every entry with a deferred or still-armed
// deadline is recalculated immediately.
func (m *Manager) Idle() {
	if m == nil {
		return
	}
	if m.state != stateIdle {
		m.slog.Debugf("driver idle")
	}
	m.state = stateIdle

	work := m.pending
	m.pending = nil
	for _, e := range m.Entries() {
		if e.deadline != nil {
			work = append(work, pendingRecalc{key: e.addr, seq: e.seq})
		}
	}
	sort.SliceStable(work, func(i, j int) bool {
		return work[i].seq < work[j].seq
	})

	for i, p := range work {
		if i > 0 && p == work[i-1] {
			continue
		}
		if e := m.entryLookup(p.key, p.seq); e != nil {
			m.entryRecalc(e)
		}
	}
}

// IsBusy returns true between Busy and Idle.
func (m *Manager) IsBusy() bool {
	return m.state == stateBusy
}

// Entry returns the entry registered under addr, or nil.
func (m *Manager) Entry(addr Addr) *Entry {
	if m == nil {
		return nil
	}
	return m.entries[addr]
}

// Entries returns all station entries in the order they were created.  The
// wildcard entry is not included.
func (m *Manager) Entries() []*Entry {
	if m == nil {
		return nil
	}

	rval := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.IsWildcard() {
			rval = append(rval, e)
		}
	}
	sort.Slice(rval, func(i, j int) bool {
		return rval[i].seq < rval[j].seq
	})
	return rval
}

// Stats returns a snapshot of the Manager's bookkeeping.
func (m *Manager) Stats() Stats {
	if m == nil {
		return Stats{}
	}

	s := Stats{
		Vifs:          len(m.vifs),
		Links:         len(m.links),
		Observers:     len(m.observers),
		Busy:          m.state == stateBusy,
		Recalcs:       m.recalcs,
		Notifications: m.notifications,
	}
	for _, e := range m.Entries() {
		s.Entries++
		if e.IsConnected() {
			s.Connected++
		}
		if e.IsMLO() {
			s.MLO++
		}
	}
	return s
}
