/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

// entryGC deletes an entry nobody needs anymore.  An entry which has lost all
// its links is held open while wildcard observers exist and it still has a
// transition to report, so they see the final Disconnected.
func (m *Manager) entryGC(e *Entry) {
	if m.entries[e.addr] != e {
		return
	}
	if e.notifying > 0 || len(e.links) > 0 || len(e.observers) > 0 {
		return
	}
	if !e.IsWildcard() {
		w := m.entries[Wildcard]
		if w != nil && len(w.observers) > 0 &&
			(len(e.active) > 0 || e.timersArmed()) {
			return
		}
	}

	m.entryDisarm(e)
	delete(m.entries, e.addr)
	m.slog.Debugf("entry %s released", e.addr)
}
