/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

type observer struct {
	id     ObserverID
	target Addr
	o      Observer
}

// Observe registers o for the transitions of the station keyed by target, or
// of every station if target is the Wildcard.  If the station is already
// connected, o is called with Connected before Observe returns; a wildcard
// observer gets one such call per connected station, in the order the
// stations were first seen.
func (m *Manager) Observe(target Addr, o Observer) ObserverID {
	if m == nil || o == nil {
		return 0
	}

	e := m.entryGetOrCreate(target)
	m.nextObserver++
	ob := &observer{
		id:     m.nextObserver,
		target: target,
		o:      o,
	}
	m.observers[ob.id] = ob
	e.observers = append(e.observers, ob.id)
	m.slog.Debugf("observer %d registered on %s", ob.id, target)

	// Replay the current state, so an observer registered while a station
	// is already up doesn't miss its Connected transition.
	e.notifying++
	if e.IsWildcard() {
		for _, x := range m.Entries() {
			if x.IsConnected() {
				x.notifying++
				m.deliver(ob.id, x, Connected)
				x.notifying--
				m.entryGC(x)
			}
		}
	} else if e.IsConnected() {
		m.deliver(ob.id, e, Connected)
	}
	e.notifying--
	m.entryGC(e)

	return ob.id
}

// Unobserve removes a registration made by Observe.  It is safe to call from
// within the observer's own callback.
func (m *Manager) Unobserve(id ObserverID) {
	if m == nil {
		return
	}

	ob := m.observers[id]
	if ob == nil {
		m.slog.Warnf("unobserve of unknown observer %d", id)
		return
	}
	delete(m.observers, id)

	e := m.entries[ob.target]
	if e == nil {
		m.slog.DPanicw("observer bound to missing entry",
			"observer", id, "entry", ob.target.String())
		return
	}
	for i, x := range e.observers {
		if x == id {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			break
		}
	}
	m.slog.Debugf("observer %d unregistered from %s", id, ob.target)
	m.entryGC(e)
}

// deliver invokes one observer, unless it was unregistered in the meantime.
func (m *Manager) deliver(id ObserverID, e *Entry, ev Event) {
	if ob := m.observers[id]; ob != nil {
		ob.o.StationChanged(e, ev)
	}
}

// entryNotify fans an event out to the entry's own observers, then to the
// wildcard observers.  Both entries are pinned against GC while their observer
// lists are being walked.
func (m *Manager) entryNotify(e *Entry, ev Event) {
	e.notifying++
	for _, id := range append([]ObserverID(nil), e.observers...) {
		m.deliver(id, e, ev)
	}

	if !e.IsWildcard() {
		if w := m.entries[Wildcard]; w != nil {
			w.notifying++
			for _, id := range append([]ObserverID(nil), w.observers...) {
				m.deliver(id, e, ev)
			}
			w.notifying--
			m.entryGC(w)
		}
	}
	e.notifying--
	m.notifications++
}
