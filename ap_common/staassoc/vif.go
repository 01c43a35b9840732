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
)

// vif tracks one local radio interface and the link records it has reported.
type vif struct {
	name    string
	addr    Addr // zero until the interface is resolved, or once it is gone
	mldAddr Addr // zero if the interface is not part of an AP MLD
	links   map[Addr]linkID
}

func (m *Manager) vifGetOrCreate(name string) *vif {
	v := m.vifs[name]
	if v == nil {
		v = &vif{
			name:  name,
			links: make(map[Addr]linkID),
		}
		m.vifs[name] = v
		m.slog.Debugf("%s: new interface", name)
	}
	return v
}

// vifLinks returns the vif's link records, ordered by remote address.
func (m *Manager) vifLinks(v *vif) []*linkRecord {
	rval := make([]*linkRecord, 0, len(v.links))
	for _, id := range v.links {
		if l := m.links[id]; l != nil {
			rval = append(rval, l)
		}
	}
	sort.Slice(rval, func(i, j int) bool {
		return rval[i].remote.less(rval[j].remote)
	})
	return rval
}

// vifSetAddrs updates an interface's own addresses.  Every link the interface
// owns is re-resolved, because the entry a link belongs to and the local half
// of its link pair both depend on them.
func (m *Manager) vifSetAddrs(v *vif, addr, mldAddr Addr) {
	if v.addr == addr && v.mldAddr == mldAddr {
		return
	}

	m.slog.Infof("%s: addr %s -> %s  mld %s -> %s", v.name,
		v.addr, addr, v.mldAddr, mldAddr)
	v.addr = addr
	v.mldAddr = mldAddr

	for _, l := range m.vifLinks(v) {
		m.linkResolve(l)
		m.linkGC(l)
	}
}

// vifGC drops an interface once it has neither an address nor links.
func (m *Manager) vifGC(v *vif) {
	if m.vifs[v.name] != v {
		return
	}
	if v.addr.IsZero() && len(v.links) == 0 {
		m.slog.Debugf("%s: interface released", v.name)
		delete(m.vifs, v.name)
	}
}
