/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package aputil

import (
	"time"

	"github.com/pkg/errors"
)

// PaceTracker tracks how frequently an event occurs.  If more than limit
// events land within period, Tick() fails.
type PaceTracker struct {
	limit  int
	period time.Duration
	starts []time.Time
	now    func() time.Time
}

// NewPaceTracker defines a PaceTracker with the provided rate limits.
func NewPaceTracker(limit int, period time.Duration) *PaceTracker {
	if limit < 1 {
		limit = 1
	}
	return &PaceTracker{
		limit:  limit,
		period: period,
		starts: make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// Tick records an event.  It returns an error if this event is the limit'th
// within the tracker's period.
func (p *PaceTracker) Tick() error {
	now := p.now()
	if len(p.starts) == p.limit {
		p.starts = p.starts[1:]
	}
	p.starts = append(p.starts, now)

	if len(p.starts) < p.limit {
		return nil
	}
	if delta := now.Sub(p.starts[0]); delta < p.period {
		return errors.Errorf("%d ticks in %v", p.limit, delta)
	}
	return nil
}

// Reset forgets all recorded events.
func (p *PaceTracker) Reset() {
	p.starts = p.starts[:0]
}
