/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

import (
	"bytes"
	"fmt"
	"sort"
	"time"
)

// StaReport is a single per-link fact delivered by the driver layer.
type StaReport struct {
	Vif         string    // local interface that saw the station
	Addr        Addr      // station's per-link address
	MLDAddr     Addr      // station's MLD address; zero for non-MLO
	Elements    []byte    // raw association elements
	Connected   bool      // connected or disconnected
	ConnectedAt time.Time // when this association was established
}

func (r StaReport) String() string {
	state := "disconnected"
	if r.Connected {
		state = "connected"
	}
	return fmt.Sprintf("%s/%s mld=%s %s at=%s ies=%d", r.Vif, r.Addr,
		r.MLDAddr, state, r.ConnectedAt.Format(time.RFC3339Nano),
		len(r.Elements))
}

// linkID identifies a link record.  IDs are never reused, so a stale ID
// simply fails to resolve.
type linkID uint64

type linkRecord struct {
	id          linkID
	vif         string
	remote      Addr
	remoteMLD   Addr
	connected   bool
	connectedAt time.Time
	elements    []byte

	// Key of the entry this record is attached to, valid if attached.
	entry    Addr
	attached bool
}

func (l *linkRecord) String() string {
	return l.vif + "/" + l.remote.String()
}

// Link is a (local interface address, remote station address) pair.
type Link struct {
	Local  Addr
	Remote Addr
}

func (l Link) String() string {
	return l.Local.String() + "-" + l.Remote.String()
}

func (l Link) less(o Link) bool {
	if l.Local != o.Local {
		return l.Local.less(o.Local)
	}
	return l.Remote.less(o.Remote)
}

// sortLinks orders a link list and drops duplicate pairs.
func sortLinks(list []Link) []Link {
	sort.Slice(list, func(i, j int) bool { return list[i].less(list[j]) })

	out := list[:0]
	for i, l := range list {
		if i == 0 || l != list[i-1] {
			out = append(out, l)
		}
	}
	return out
}

// sameLinks compares two link lists as sets.  Both must be sorted and free of
// duplicates, as produced by sortLinks.
func sameLinks(a, b []Link) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// linkUpdate applies a report to its link record, creating the record if
// needed.  It returns true if any of the facts changed.
func (m *Manager) linkUpdate(v *vif, r StaReport) bool {
	var l *linkRecord

	if id, ok := v.links[r.Addr]; ok {
		l = m.links[id]
	}
	if l == nil {
		m.nextLink++
		l = &linkRecord{
			id:     m.nextLink,
			vif:    v.name,
			remote: r.Addr,
		}
		m.links[l.id] = l
		v.links[r.Addr] = l.id
	}

	changed := l.remoteMLD != r.MLDAddr ||
		l.connected != r.Connected ||
		!l.connectedAt.Equal(r.ConnectedAt) ||
		!bytes.Equal(l.elements, r.Elements)

	if changed {
		m.slog.Debugf("link %v updated: %v", l, r)
		l.remoteMLD = r.MLDAddr
		l.connected = r.Connected
		l.connectedAt = r.ConnectedAt
		l.elements = append([]byte(nil), r.Elements...)
		m.linkResolve(l)
	}
	m.linkGC(l)

	return changed
}

// linkTarget returns the key of the entry a link record belongs to.  A record
// belongs nowhere unless it is connected and its interface is resolved.
func (m *Manager) linkTarget(l *linkRecord) (Addr, bool) {
	v := m.vifs[l.vif]
	if !l.connected || v == nil || v.addr.IsZero() {
		return Addr{}, false
	}
	if !l.remoteMLD.IsZero() {
		return l.remoteMLD, true
	}
	return l.remote, true
}

// linkResolve moves a link record to the entry it belongs to.  Both the entry
// it leaves and the one it joins get a recalculation scheduled.
func (m *Manager) linkResolve(l *linkRecord) {
	target, ok := m.linkTarget(l)

	if l.attached && ok && l.entry == target {
		if e := m.entries[target]; e != nil {
			m.entrySchedule(e)
		}
		return
	}

	if l.attached {
		m.linkDetach(l)
	}
	if ok {
		m.linkAttach(l, target)
	}
}

func (m *Manager) linkAttach(l *linkRecord, key Addr) {
	e := m.entryGetOrCreate(key)

	m.slog.Debugf("link %v attached to %s", l, key)
	l.entry = key
	l.attached = true
	e.links[l.id] = struct{}{}
	m.entrySchedule(e)
}

func (m *Manager) linkDetach(l *linkRecord) {
	if !l.attached {
		m.slog.DPanicw("detaching unattached link", "link", l.String())
		return
	}

	key := l.entry
	l.attached = false
	l.entry = Addr{}

	e := m.entries[key]
	if e == nil {
		m.slog.DPanicw("link attached to missing entry",
			"link", l.String(), "entry", key.String())
		return
	}

	m.slog.Debugf("link %v detached from %s", l, key)
	delete(e.links, l.id)
	m.entrySchedule(e)
	m.entryGC(e)
}

// linkGC deletes a link record which is neither connected nor attached, and
// then gives its interface a chance to go away.
func (m *Manager) linkGC(l *linkRecord) {
	if l.connected || l.attached {
		return
	}
	if m.links[l.id] != l {
		return
	}

	delete(m.links, l.id)
	v := m.vifs[l.vif]
	if v != nil {
		if id, ok := v.links[l.remote]; ok && id == l.id {
			delete(v.links, l.remote)
		}
		m.vifGC(v)
	}
}
