/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package staassoc

import (
	"time"
)

// Defaults used for any Config field left at zero.
const (
	DefaultSettle   = 500 * time.Millisecond
	DefaultDeadline = 3 * time.Second
	DefaultMaxLinks = 16
)

// Config holds the Manager's tunables.
type Config struct {
	// Settle is re-armed on every update to an entry, coalescing bursts.
	Settle time.Duration
	// Deadline is armed once per burst, bounding notification latency.
	Deadline time.Duration
	// MaxLinks bounds each of an entry's active and stale link lists.
	MaxLinks int
}

// DefaultConfig returns a Config populated with the default values.
func DefaultConfig() Config {
	return Config{
		Settle:   DefaultSettle,
		Deadline: DefaultDeadline,
		MaxLinks: DefaultMaxLinks,
	}
}

func (c Config) withDefaults() Config {
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = DefaultMaxLinks
	}
	return c
}
