/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package statrace reads and replays recorded driver traces: the interface
// and station reports a radio driver produced, with the time between them.
//
// A trace has one directive per line; '#' starts a comment.
//
//	vif <name> <addr|-> [mld=<addr>]
//	sta <vif> <addr> [mld=<addr>] connected|disconnected [at=<dur>] [ies=<hex>]
//	busy
//	idle
//	advance <dur>
//	observe <addr|*>
//	unobserve <addr|*>
//	expect <addr> <event> [active=<n>] [stale=<n>] [mlo=<bool>]
package statrace

import (
	"bufio"
	"encoding/hex"
	"io"
	"strconv"
	"strings"
	"time"

	"bgsta/ap_common/staassoc"

	"github.com/pkg/errors"
)

// Op identifies a directive.
type Op int

// The directives a trace may contain.
const (
	OpVif Op = iota
	OpSta
	OpBusy
	OpIdle
	OpAdvance
	OpObserve
	OpUnobserve
	OpExpect
)

var opNames = map[string]Op{
	"vif":       OpVif,
	"sta":       OpSta,
	"busy":      OpBusy,
	"idle":      OpIdle,
	"advance":   OpAdvance,
	"observe":   OpObserve,
	"unobserve": OpUnobserve,
	"expect":    OpExpect,
}

func (o Op) String() string {
	for name, op := range opNames {
		if op == o {
			return name
		}
	}
	return "unknown"
}

// Directive is one parsed trace line.  Which fields are meaningful depends
// on Op.
type Directive struct {
	Line int
	Op   Op

	Vif       string
	Addr      staassoc.Addr // vif, sta, observe, unobserve and expect
	MLD       staassoc.Addr
	Connected bool
	At        time.Duration // offset from the start of the trace
	HasAt     bool
	Elements  []byte
	Duration  time.Duration // advance

	Event  staassoc.Event // expect
	Active int           // expect; -1 if not checked
	Stale  int           // expect; -1 if not checked
	MLO    *bool         // expect; nil if not checked
}

func parseTarget(s string) (staassoc.Addr, error) {
	if s == "*" {
		return staassoc.Wildcard, nil
	}
	return staassoc.ParseAddr(s)
}

func parseEvent(s string) (staassoc.Event, error) {
	for _, ev := range staassoc.Events {
		if ev.String() == s {
			return ev, nil
		}
	}
	return 0, errors.Errorf("unknown event '%s'", s)
}

// options splits trailing key=value tokens from bare words.
func options(fields []string) (map[string]string, []string) {
	opts := make(map[string]string)
	var words []string

	for _, f := range fields {
		if kv := strings.SplitN(f, "=", 2); len(kv) == 2 {
			opts[kv[0]] = kv[1]
		} else {
			words = append(words, f)
		}
	}
	return opts, words
}

func parseLine(d *Directive, fields []string) error {
	var err error

	op, ok := opNames[fields[0]]
	if !ok {
		return errors.Errorf("unknown directive '%s'", fields[0])
	}
	d.Op = op
	opts, words := options(fields[1:])

	nargs := map[Op]int{
		OpVif: 2, OpSta: 3, OpBusy: 0, OpIdle: 0, OpAdvance: 1,
		OpObserve: 1, OpUnobserve: 1, OpExpect: 2,
	}
	if len(words) != nargs[op] {
		return errors.Errorf("%s takes %d arguments, got %d", op,
			nargs[op], len(words))
	}

	if v, ok := opts["mld"]; ok {
		if d.MLD, err = staassoc.ParseAddr(v); err != nil {
			return errors.Wrap(err, "bad mld")
		}
	}

	switch op {
	case OpVif:
		d.Vif = words[0]
		if words[1] == "-" {
			break
		}
		d.Addr, err = staassoc.ParseAddr(words[1])

	case OpSta:
		d.Vif = words[0]
		if d.Addr, err = staassoc.ParseAddr(words[1]); err != nil {
			break
		}
		switch words[2] {
		case "connected":
			d.Connected = true
		case "disconnected":
		default:
			return errors.Errorf("bad station state '%s'", words[2])
		}
		if v, ok := opts["at"]; ok {
			if d.At, err = time.ParseDuration(v); err != nil {
				return errors.Wrap(err, "bad at")
			}
			d.HasAt = true
		}
		if v, ok := opts["ies"]; ok {
			if d.Elements, err = hex.DecodeString(v); err != nil {
				return errors.Wrap(err, "bad ies")
			}
		}

	case OpAdvance:
		d.Duration, err = time.ParseDuration(words[0])
		if err == nil && d.Duration < 0 {
			err = errors.New("negative advance")
		}

	case OpObserve, OpUnobserve:
		d.Addr, err = parseTarget(words[0])

	case OpExpect:
		if d.Addr, err = staassoc.ParseAddr(words[0]); err != nil {
			break
		}
		if d.Event, err = parseEvent(words[1]); err != nil {
			break
		}
		d.Active, d.Stale = -1, -1
		if v, ok := opts["active"]; ok {
			if d.Active, err = strconv.Atoi(v); err != nil {
				return errors.Wrap(err, "bad active")
			}
		}
		if v, ok := opts["stale"]; ok {
			if d.Stale, err = strconv.Atoi(v); err != nil {
				return errors.Wrap(err, "bad stale")
			}
		}
		if v, ok := opts["mlo"]; ok {
			b, berr := strconv.ParseBool(v)
			if berr != nil {
				return errors.Wrap(berr, "bad mlo")
			}
			d.MLO = &b
		}
	}

	return err
}

// Parse reads a whole trace.
func Parse(r io.Reader) ([]Directive, error) {
	var rval []Directive

	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		d := Directive{Line: line}
		if err := parseLine(&d, fields); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		rval = append(rval, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading trace")
	}

	return rval, nil
}
