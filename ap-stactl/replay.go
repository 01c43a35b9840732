/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package main

import (
	"fmt"
	"io"
	"strings"

	"bgsta/ap_common/aputil"
	"bgsta/ap_common/staassoc"
	"bgsta/ap_common/statrace"
	"bgsta/common/wifi"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tatsushid/go-prettytable"
	"go.uber.org/zap"
)

func links(list []staassoc.Link) string {
	if len(list) == 0 {
		return "-"
	}
	s := make([]string, len(list))
	for i, l := range list {
		s[i] = l.String()
	}
	return strings.Join(s, ",")
}

func modes(ies []byte) string {
	if len(ies) == 0 {
		return "-"
	}
	caps, err := wifi.Summarize(ies)
	if err != nil {
		return "?"
	}
	return caps.Modes()
}

func printNotifications(w io.Writer, list []statrace.Notification,
	db vendorDB) {

	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "Time", AlignRight: true},
		prettytable.Column{Header: "Station"},
		prettytable.Column{Header: "Vendor"},
		prettytable.Column{Header: "Event"},
		prettytable.Column{Header: "MLO"},
		prettytable.Column{Header: "Modes"},
		prettytable.Column{Header: "Active"},
		prettytable.Column{Header: "Stale"},
	)
	table.Separator = "  "

	for _, n := range list {
		table.AddRow(n.At, n.Addr, vendor(db, n.Addr), eventString(n.Event),
			n.MLO, modes(n.Elements), links(n.Active), links(n.Stale))
	}
	w.Write(table.Bytes())
}

func printEntries(w io.Writer, mgr *staassoc.Manager) {
	s := mgr.Stats()
	fmt.Fprintf(w, "\n%d interfaces, %d links, %d stations (%d connected)\n",
		s.Vifs, s.Links, s.Entries, s.Connected)

	entries := mgr.Entries()
	if len(entries) == 0 {
		return
	}

	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "Station"},
		prettytable.Column{Header: "Connected"},
		prettytable.Column{Header: "MLO"},
		prettytable.Column{Header: "Active"},
		prettytable.Column{Header: "Stale"},
	)
	table.Separator = "  "
	for _, e := range entries {
		table.AddRow(e.Addr(), e.IsConnected(), e.IsMLO(),
			links(e.ActiveLinks()), links(e.StaleLinks()))
	}
	w.Write(table.Bytes())
}

func replay(cmd *cobra.Command, args []string) error {
	var cfg staassoc.Config
	var db vendorDB
	var err error

	cfg.Settle, _ = cmd.Flags().GetDuration("settle")
	cfg.Deadline, _ = cmd.Flags().GetDuration("deadline")
	cfg.MaxLinks, _ = cmd.Flags().GetInt("max-links")
	verbose, _ := cmd.Flags().GetBool("verbose")
	ouiFlag, _ := cmd.Flags().GetString("oui-db")

	if path := ouiPath(ouiFlag); path != "" {
		if db, err = openVendors(path); err != nil {
			return err
		}
	}

	f, err := AppFs.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "opening trace")
	}
	trace, err := statrace.Parse(f)
	f.Close()
	if err != nil {
		return errors.Wrap(err, args[0])
	}

	slog := zap.NewNop().Sugar()
	if verbose {
		slog = aputil.NewLogger(pname)
	}

	out := cmd.OutOrStdout()
	p := statrace.NewPlayer(cfg, slog)
	if verbose {
		p.OnNotify = func(n statrace.Notification) {
			slog.Infof("%v", n)
		}
	}
	err = p.Play(trace)

	printNotifications(out, p.Notifications, db)
	printEntries(out, p.Mgr)
	return errors.Wrap(err, args[0])
}

func newReplayCmd() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Replay a recorded driver trace and list the station events",
		Args:  cobra.ExactArgs(1),
		RunE:  replay,
	}
	replayCmd.Flags().Duration("settle", staassoc.DefaultSettle,
		"quiet period before an entry is recalculated")
	replayCmd.Flags().Duration("deadline", staassoc.DefaultDeadline,
		"longest delay before an entry is recalculated")
	replayCmd.Flags().Int("max-links", staassoc.DefaultMaxLinks,
		"links tracked per station")
	replayCmd.Flags().String("oui-db", "", "path to OUI database file")
	replayCmd.Flags().BoolP("verbose", "v", false, "log manager activity")
	return replayCmd
}
