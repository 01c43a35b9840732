/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// Package netctl tracks the hardware addresses of the wireless interfaces
// through rtnetlink.
package netctl

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrNoDevice indicates that the requested network device wasn't found
var ErrNoDevice = errors.New("no such device")

// VifUpdate reports the current hardware address of an interface.  A nil Addr
// means the interface is gone.
type VifUpdate struct {
	Name string
	Addr net.HardwareAddr
}

func (u VifUpdate) String() string {
	if u.Addr == nil {
		return u.Name + " gone"
	}
	return u.Name + " " + u.Addr.String()
}

// Translate converts a netlink link message into a VifUpdate.  The second
// return value is false for messages about interfaces not in names.
func Translate(u netlink.LinkUpdate, names map[string]bool) (VifUpdate, bool) {
	if u.Link == nil || u.Link.Attrs() == nil {
		return VifUpdate{}, false
	}

	attrs := u.Link.Attrs()
	if !names[attrs.Name] {
		return VifUpdate{}, false
	}

	rval := VifUpdate{Name: attrs.Name}
	if u.Header.Type != unix.RTM_DELLINK && len(attrs.HardwareAddr) == 6 {
		rval.Addr = append(net.HardwareAddr(nil), attrs.HardwareAddr...)
	}
	return rval, true
}

// LinkAddr returns the current hardware address of the named interface.
func LinkAddr(name string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil, ErrNoDevice
		}
		return nil, errors.Wrapf(err, "LinkByName(%s)", name)
	}
	return link.Attrs().HardwareAddr, nil
}

// WatchLinks reports the addresses of the named interfaces: first their
// current state, then every change, until ctx is cancelled.
func WatchLinks(ctx context.Context, names []string,
	slog *zap.SugaredLogger) (<-chan VifUpdate, error) {

	want := make(map[string]bool)
	for _, n := range names {
		want[n] = true
	}

	raw := make(chan netlink.LinkUpdate, 16)
	done := make(chan struct{})
	opts := netlink.LinkSubscribeOptions{
		ErrorCallback: func(err error) {
			slog.Warnf("link subscription: %v", err)
		},
	}
	if err := netlink.LinkSubscribeWithOptions(raw, done, opts); err != nil {
		return nil, errors.Wrap(err, "LinkSubscribe")
	}

	out := make(chan VifUpdate, len(names)+16)
	for _, n := range names {
		addr, err := LinkAddr(n)
		if err != nil {
			slog.Infof("%s: %v", n, err)
			continue
		}
		out <- VifUpdate{Name: n, Addr: addr}
	}

	go func() {
		defer close(out)
		defer close(done)

		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-raw:
				if !ok {
					slog.Warnf("link subscription closed")
					return
				}
				if vu, ok := Translate(u, want); ok {
					select {
					case out <- vu:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}
