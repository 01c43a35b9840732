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

// Timer is an armed, one-shot callback.  Stop returns false if the timer had
// already fired or been stopped.
type Timer interface {
	Stop() bool
}

// Scheduler is the clock and timer primitive the Manager runs on.  Timer
// callbacks must be invoked on the same goroutine that calls into the
// Manager.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// VirtualScheduler is a manually advanced clock.  Timers only fire from
// within Advance, in deadline order, on the caller's goroutine.
type VirtualScheduler struct {
	now     time.Time
	seq     uint64
	pending []*virtualTimer
}

type virtualTimer struct {
	sched *VirtualScheduler
	when  time.Time
	seq   uint64
	f     func()
	armed bool
}

// NewVirtualScheduler returns a VirtualScheduler whose clock reads start.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{now: start}
}

// Now returns the virtual time.
func (s *VirtualScheduler) Now() time.Time {
	return s.now
}

// AfterFunc arms a timer which fires once the clock has been advanced by d.
func (s *VirtualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.seq++
	t := &virtualTimer{
		sched: s,
		when:  s.now.Add(d),
		seq:   s.seq,
		f:     f,
		armed: true,
	}
	s.pending = append(s.pending, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	if !t.armed {
		return false
	}
	t.armed = false
	t.sched.remove(t)
	return true
}

func (s *VirtualScheduler) remove(t *virtualTimer) {
	for i, x := range s.pending {
		if x == t {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// next returns the earliest armed timer due at or before limit.
func (s *VirtualScheduler) next(limit time.Time) *virtualTimer {
	sort.SliceStable(s.pending, func(i, j int) bool {
		a, b := s.pending[i], s.pending[j]
		if !a.when.Equal(b.when) {
			return a.when.Before(b.when)
		}
		return a.seq < b.seq
	})
	if len(s.pending) > 0 && !s.pending[0].when.After(limit) {
		return s.pending[0]
	}
	return nil
}

// Advance moves the clock forward by d, firing every timer that comes due,
// including timers armed by the callbacks themselves.  It returns the number
// of timers fired.
func (s *VirtualScheduler) Advance(d time.Duration) int {
	fired := 0
	limit := s.now.Add(d)

	for t := s.next(limit); t != nil; t = s.next(limit) {
		s.now = t.when
		t.armed = false
		s.remove(t)
		t.f()
		fired++
	}
	s.now = limit

	return fired
}

// Pending returns the number of armed timers.
func (s *VirtualScheduler) Pending() int {
	return len(s.pending)
}

// LoopScheduler runs on the wall clock, but instead of invoking timer
// callbacks on the runtime's timer goroutine it hands them to the goroutine
// that owns the Manager, through the channel returned by Fires.
type LoopScheduler struct {
	fires chan func()
	done  chan struct{}
}

type loopTimer struct {
	timer   *time.Timer
	f       func()
	stopped bool
}

// NewLoopScheduler allocates a LoopScheduler with room for depth queued
// timer callbacks.
func NewLoopScheduler(depth int) *LoopScheduler {
	return &LoopScheduler{
		fires: make(chan func(), depth),
		done:  make(chan struct{}),
	}
}

// Now returns the wall clock time.
func (s *LoopScheduler) Now() time.Time {
	return time.Now()
}

// AfterFunc arms a wall clock timer.  When it expires, its callback is queued
// on the Fires channel.
func (s *LoopScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{f: f}

	t.timer = time.AfterFunc(d, func() {
		select {
		case s.fires <- t.fire:
		case <-s.done:
		}
	})
	return t
}

// Fires returns the channel the owning goroutine must drain, invoking each
// function it receives.
func (s *LoopScheduler) Fires() <-chan func() {
	return s.fires
}

// Close releases any timers blocked trying to queue their callbacks.
func (s *LoopScheduler) Close() {
	close(s.done)
}

// fire and Stop both run on the owning goroutine, so a timer stopped after its
// callback was queued is still suppressed.
func (t *loopTimer) fire() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.f()
}

func (t *loopTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}
