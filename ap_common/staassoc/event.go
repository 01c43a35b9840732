/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

// Event describes the transition an entry went through during a
// recalculation.
type Event int

// The four transitions delivered to observers.
const (
	// Undefined is a non-terminal, informational change: only the stale
	// links, the association elements or the MLO flag moved.
	Undefined Event = iota
	// Connected means the station went from no active links to some.
	Connected
	// Reconnected means the active links were replaced, or the station
	// re-associated on the same links.
	Reconnected
	// Disconnected means the station lost its last active link.
	Disconnected
)

var eventNames = map[Event]string{
	Undefined:    "undefined",
	Connected:    "connected",
	Reconnected:  "reconnected",
	Disconnected: "disconnected",
}

// Events lists every event kind, in declaration order.
var Events = []Event{Undefined, Connected, Reconnected, Disconnected}

func (ev Event) String() string {
	if s, ok := eventNames[ev]; ok {
		return s
	}
	return "invalid"
}

// Observer receives the transitions of one station, or of every station if it
// was registered against the Wildcard address.  The Entry is only valid for
// the duration of the call, unless the observer is registered on that entry.
type Observer interface {
	StationChanged(e *Entry, ev Event)
}

// ObserverFunc adapts an ordinary function to the Observer interface.
type ObserverFunc func(e *Entry, ev Event)

// StationChanged calls f(e, ev).
func (f ObserverFunc) StationChanged(e *Entry, ev Event) {
	f(e, ev)
}

// ObserverID is the handle returned by Observe.  The zero value is never a
// valid handle.
type ObserverID uint64

// changes collects what a recalculation found to be different from the
// entry's previously persisted state.
type changes struct {
	mlo         bool
	active      bool
	stale       bool
	elements    bool
	connectedAt bool

	prevActive int
	nextActive int
}

func (c changes) any() bool {
	return c.mlo || c.active || c.stale || c.elements || c.connectedAt
}

// event classifies a set of changes.  The first match wins; ok is false when
// nothing changed at all.
func (c changes) event() (ev Event, ok bool) {
	switch {
	case c.active && c.prevActive == 0 && c.nextActive > 0:
		return Connected, true
	case c.active && c.prevActive > 0 && c.nextActive > 0:
		return Reconnected, true
	case c.connectedAt && !c.active && !c.stale && c.nextActive > 0:
		return Reconnected, true
	case c.active && c.prevActive > 0 && c.nextActive == 0:
		return Disconnected, true
	case c.any():
		return Undefined, true
	}
	return Undefined, false
}
