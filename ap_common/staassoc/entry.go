/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

import (
	"sort"
	"time"
)

// Entry is the consolidated state of one logical station, keyed by its MLD
// address or, for a non-MLO station, by its own address.
type Entry struct {
	addr Addr
	seq  uint64 // creation order; distinguishes reincarnations of a key

	active      []Link
	stale       []Link
	elements    []byte
	mlo         bool
	localMLD    Addr
	connectedAt time.Time

	settle          Timer
	deadline        Timer
	deadlinePending bool // deadline expired while the driver was busy

	notifying int
	links     map[linkID]struct{}
	observers []ObserverID
}

// Addr returns the key the entry is registered under.
func (e *Entry) Addr() Addr {
	return e.addr
}

// IsWildcard returns true for the entry observers use to see all stations.
func (e *Entry) IsWildcard() bool {
	return e.addr == Wildcard
}

// IsConnected returns true if the station has at least one active link.
func (e *Entry) IsConnected() bool {
	return len(e.active) > 0
}

// IsMLO returns true if the station's active links form a multi-link
// association.
func (e *Entry) IsMLO() bool {
	return e.mlo
}

// ActiveLinks returns the links currently believed to carry the station.
func (e *Entry) ActiveLinks() []Link {
	return append([]Link(nil), e.active...)
}

// StaleLinks returns links superseded by the active ones, but which have not
// been torn down yet.
func (e *Entry) StaleLinks() []Link {
	return append([]Link(nil), e.stale...)
}

// LocalMLDAddr returns the MLD address of the local interfaces carrying an
// MLO station.
func (e *Entry) LocalMLDAddr() (Addr, bool) {
	return e.localMLD, e.mlo && !e.localMLD.IsZero()
}

// AssocElements returns the association elements of the newest active link.
func (e *Entry) AssocElements() []byte {
	return append([]byte(nil), e.elements...)
}

// ConnectedAt returns the association time of the newest link, or the zero
// time if the station has no links.
func (e *Entry) ConnectedAt() time.Time {
	return e.connectedAt
}

func (e *Entry) timersArmed() bool {
	return e.settle != nil || e.deadline != nil || e.deadlinePending
}

func (m *Manager) entryGetOrCreate(key Addr) *Entry {
	e := m.entries[key]
	if e == nil {
		m.nextEntry++
		e = &Entry{
			addr:  key,
			seq:   m.nextEntry,
			links: make(map[linkID]struct{}),
		}
		m.entries[key] = e
		m.slog.Debugf("entry %s created", key)
	}
	return e
}

// entryLookup returns the live entry for key, provided it is the same
// incarnation a timer was armed for.
func (m *Manager) entryLookup(key Addr, seq uint64) *Entry {
	if e := m.entries[key]; e != nil && e.seq == seq {
		return e
	}
	return nil
}

// entryLinks returns the attached link records, ordered by interface name and
// then by remote address.  Recalculation relies on this order when two links
// claim the same connection time.
func (m *Manager) entryLinks(e *Entry) []*linkRecord {
	rval := make([]*linkRecord, 0, len(e.links))
	for id := range e.links {
		if l := m.links[id]; l != nil {
			rval = append(rval, l)
		}
	}
	sort.Slice(rval, func(i, j int) bool {
		a, b := rval[i], rval[j]
		if a.vif != b.vif {
			return a.vif < b.vif
		}
		return a.remote.less(b.remote)
	})
	return rval
}

// entrySchedule (re)arms the settle timer, and arms the deadline timer unless
// one is already running for the current burst.
func (m *Manager) entrySchedule(e *Entry) {
	key, seq := e.addr, e.seq

	if e.settle != nil {
		e.settle.Stop()
	}
	e.settle = m.sched.AfterFunc(m.cfg.Settle, func() {
		m.settleFired(key, seq)
	})

	if e.deadline == nil && !e.deadlinePending {
		e.deadline = m.sched.AfterFunc(m.cfg.Deadline, func() {
			m.deadlineFired(key, seq)
		})
	}
}

func (m *Manager) entryDisarm(e *Entry) {
	if e.settle != nil {
		e.settle.Stop()
		e.settle = nil
	}
	if e.deadline != nil {
		e.deadline.Stop()
		e.deadline = nil
	}
	e.deadlinePending = false
}

func (m *Manager) settleFired(key Addr, seq uint64) {
	if e := m.entryLookup(key, seq); e != nil {
		e.settle = nil
		m.entryRecalc(e)
	}
}

func (m *Manager) deadlineFired(key Addr, seq uint64) {
	e := m.entryLookup(key, seq)
	if e == nil {
		return
	}

	e.deadline = nil
	if m.state == stateBusy {
		m.slog.Debugf("entry %s: deadline while busy, deferred", key)
		e.deadlinePending = true
		m.pending = append(m.pending, pendingRecalc{key: key, seq: seq})
		return
	}
	m.entryRecalc(e)
}
