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
	"time"
)

// linkSet accumulates an active or stale list, enforcing the capacity limit.
type linkSet struct {
	name  string
	max   int
	links []Link
	recs  []*linkRecord
	drops int
}

func (s *linkSet) add(l Link, rec *linkRecord) {
	if len(s.links) >= s.max {
		s.drops++
		return
	}
	s.links = append(s.links, l)
	s.recs = append(s.recs, rec)
}

// newestLink picks the attached record with the latest connection time.
// Records are scanned in entryLinks order, and only a strictly later time
// displaces the current pick, so ties go to the first record in that order.
func (m *Manager) newestLink(recs []*linkRecord) *linkRecord {
	var newest *linkRecord

	for _, l := range recs {
		v := m.vifs[l.vif]
		if v == nil || v.addr.IsZero() {
			continue
		}
		if newest == nil || l.connectedAt.After(newest.connectedAt) {
			newest = l
		}
	}
	return newest
}

// entryRecalc recomputes an entry's active/stale partition from its attached
// link records, persists it, and notifies observers of any transition.
func (m *Manager) entryRecalc(e *Entry) {
	m.entryDisarm(e)

	recs := m.entryLinks(e)
	newest := m.newestLink(recs)

	var mlo bool
	var localMLD Addr
	if newest != nil && !newest.remoteMLD.IsZero() {
		nv := m.vifs[newest.vif]
		if nv.mldAddr.IsZero() {
			m.slog.Warnw("remote MLO link on non-MLO interface",
				"entry", e.addr.String(), "link", newest.String(),
				"remote_mld", newest.remoteMLD.String())
		} else {
			mlo = true
			localMLD = nv.mldAddr
		}
	}

	active := linkSet{name: "active", max: m.cfg.MaxLinks}
	stale := linkSet{name: "stale", max: m.cfg.MaxLinks}
	for _, l := range recs {
		v := m.vifs[l.vif]
		if v == nil || v.addr.IsZero() {
			continue
		}

		var isActive bool
		if mlo {
			isActive = v.mldAddr == localMLD &&
				l.remoteMLD == newest.remoteMLD
		} else {
			isActive = (l == newest)
		}

		link := Link{Local: v.addr, Remote: l.remote}
		if isActive {
			active.add(link, l)
		} else {
			stale.add(link, l)
		}
	}
	for _, s := range []*linkSet{&active, &stale} {
		if s.drops > 0 {
			m.slog.Warnw("too many links", "entry", e.addr.String(),
				"list", s.name, "max", s.max, "dropped", s.drops)
		}
	}

	var elements []byte
	for _, l := range active.recs {
		if len(l.elements) > 0 && (elements == nil || l == newest) {
			elements = l.elements
		}
	}
	elements = append([]byte(nil), elements...)

	var connectedAt time.Time
	if newest != nil {
		connectedAt = newest.connectedAt
	}

	activeLinks := sortLinks(active.links)
	staleLinks := sortLinks(stale.links)
	c := changes{
		mlo:         mlo != e.mlo,
		active:      !sameLinks(activeLinks, e.active),
		stale:       !sameLinks(staleLinks, e.stale),
		elements:    !bytes.Equal(elements, e.elements),
		connectedAt: newest != nil && !connectedAt.Equal(e.connectedAt),
		prevActive:  len(e.active),
		nextActive:  len(activeLinks),
	}
	ev, raise := c.event()

	e.active = activeLinks
	e.stale = staleLinks
	e.elements = elements
	e.mlo = mlo
	e.localMLD = localMLD
	e.connectedAt = connectedAt
	m.recalcs++

	if raise {
		m.slog.Infof("%s %v: active=%v stale=%v mlo=%v", e.addr, ev,
			e.active, e.stale, e.mlo)
		m.entryNotify(e, ev)
	} else {
		m.slog.Debugf("%s unchanged", e.addr)
	}

	m.entryGC(e)
}
