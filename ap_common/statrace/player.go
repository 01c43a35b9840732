/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package statrace

import (
	"fmt"
	"time"

	"bgsta/ap_common/staassoc"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Notification is one transition delivered to an observer during replay.
type Notification struct {
	At       time.Duration // offset from the start of the trace
	Observer staassoc.Addr // the address the observer was registered on
	Addr     staassoc.Addr
	Event    staassoc.Event
	Active   []staassoc.Link
	Stale    []staassoc.Link
	MLO      bool
	Elements []byte
}

func (n Notification) String() string {
	return fmt.Sprintf("%8v %s %-12v active=%v stale=%v mlo=%v",
		n.At, n.Addr, n.Event, n.Active, n.Stale, n.MLO)
}

// Player applies trace directives to a Manager running on virtual time.
type Player struct {
	Start time.Time
	Sched *staassoc.VirtualScheduler
	Mgr   *staassoc.Manager

	// OnNotify, if set, sees every notification as it is recorded.
	OnNotify func(Notification)

	Notifications []Notification
	checked       int
	observers     map[staassoc.Addr][]staassoc.ObserverID
}

// NewPlayer builds a Manager with the given configuration on a fresh virtual
// clock.
func NewPlayer(cfg staassoc.Config, slog *zap.SugaredLogger) *Player {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := staassoc.NewVirtualScheduler(start)

	return &Player{
		Start:     start,
		Sched:     sched,
		Mgr:       staassoc.New(cfg, sched, slog),
		observers: make(map[staassoc.Addr][]staassoc.ObserverID),
	}
}

// Elapsed returns the virtual time since the start of the trace.
func (p *Player) Elapsed() time.Duration {
	return p.Sched.Now().Sub(p.Start)
}

func (p *Player) observer(target staassoc.Addr) staassoc.Observer {
	return staassoc.ObserverFunc(func(e *staassoc.Entry, ev staassoc.Event) {
		n := Notification{
			At:       p.Elapsed(),
			Observer: target,
			Addr:     e.Addr(),
			Event:    ev,
			Active:   e.ActiveLinks(),
			Stale:    e.StaleLinks(),
			MLO:      e.IsMLO(),
			Elements: e.AssocElements(),
		}
		p.Notifications = append(p.Notifications, n)
		if p.OnNotify != nil {
			p.OnNotify(n)
		}
	})
}

func (p *Player) expect(d Directive) error {
	if p.checked >= len(p.Notifications) {
		return errors.Errorf("expected %s %v, got nothing", d.Addr, d.Event)
	}
	n := p.Notifications[p.checked]
	p.checked++

	if n.Addr != d.Addr || n.Event != d.Event {
		return errors.Errorf("expected %s %v, got %s %v", d.Addr, d.Event,
			n.Addr, n.Event)
	}
	if d.Active >= 0 && len(n.Active) != d.Active {
		return errors.Errorf("expected %d active links, got %v", d.Active,
			n.Active)
	}
	if d.Stale >= 0 && len(n.Stale) != d.Stale {
		return errors.Errorf("expected %d stale links, got %v", d.Stale,
			n.Stale)
	}
	if d.MLO != nil && n.MLO != *d.MLO {
		return errors.Errorf("expected mlo=%v", *d.MLO)
	}
	return nil
}

// Apply executes a single directive.
func (p *Player) Apply(d Directive) error {
	switch d.Op {
	case OpVif:
		p.Mgr.VifReport(d.Vif, d.Addr, d.MLD)

	case OpSta:
		at := p.Sched.Now()
		if d.HasAt {
			at = p.Start.Add(d.At)
		}
		p.Mgr.StaReport(staassoc.StaReport{
			Vif:         d.Vif,
			Addr:        d.Addr,
			MLDAddr:     d.MLD,
			Elements:    d.Elements,
			Connected:   d.Connected,
			ConnectedAt: at,
		})

	case OpBusy:
		p.Mgr.Busy()

	case OpIdle:
		p.Mgr.Idle()

	case OpAdvance:
		p.Sched.Advance(d.Duration)

	case OpObserve:
		id := p.Mgr.Observe(d.Addr, p.observer(d.Addr))
		p.observers[d.Addr] = append(p.observers[d.Addr], id)

	case OpUnobserve:
		ids := p.observers[d.Addr]
		if len(ids) == 0 {
			return errors.Errorf("no observer on %s", d.Addr)
		}
		p.Mgr.Unobserve(ids[len(ids)-1])
		p.observers[d.Addr] = ids[:len(ids)-1]

	case OpExpect:
		return p.expect(d)

	default:
		return errors.Errorf("unknown op %v", d.Op)
	}
	return nil
}

// Play applies every directive in order, stopping at the first failure.
func (p *Player) Play(trace []Directive) error {
	for _, d := range trace {
		if err := p.Apply(d); err != nil {
			return errors.Wrapf(err, "line %d", d.Line)
		}
	}
	return nil
}
