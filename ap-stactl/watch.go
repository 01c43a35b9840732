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
	"time"

	"bgsta/ap_common/broker"
	"bgsta/ap_common/staassoc"
	"bgsta/base_def"
	"bgsta/common/network"

	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"nanomsg.org/go/mangos/v2"
)

// stationFilter returns the numeric form of the --sta flag, or 0 to accept
// every station.
func stationFilter(sta string) (uint64, error) {
	if sta == "" {
		return 0, nil
	}
	val := network.MacToUint64(sta)
	if val == 0 {
		return 0, errors.Errorf("bad station address '%s'", sta)
	}
	return val, nil
}

func matchEvent(pb *structpb.Struct, filter uint64) bool {
	if filter == 0 {
		return true
	}
	return uint64(pb.GetFields()["mac"].GetNumberValue()) == filter
}

func printEvent(w io.Writer, pb *structpb.Struct, db vendorDB) {
	f := pb.GetFields()

	mac := network.Uint64ToMac(uint64(f["mac"].GetNumberValue()))
	addr, _ := staassoc.ParseAddr(mac)
	ev := f["event"].GetStringValue()
	for _, e := range staassoc.Events {
		if e.String() == ev {
			ev = eventString(e)
		}
	}

	fmt.Fprintf(w, "%s %s %-12s mlo=%v", f["timestamp"].GetStringValue(),
		mac, ev, f["mlo"].GetBoolValue())
	if v := vendor(db, addr); v != "-" {
		fmt.Fprintf(w, " vendor=%q", v)
	}
	if modes, ok := f["modes"]; ok {
		fmt.Fprintf(w, " modes=%s", modes.GetStringValue())
	}
	for _, l := range f["active"].GetListValue().GetValues() {
		fmt.Fprintf(w, " %s", l.GetStringValue())
	}
	fmt.Fprintln(w)
}

func watch(cmd *cobra.Command, args []string) error {
	var db vendorDB
	var err error

	url := base_def.WIFID_PUB_URL
	if len(args) > 0 {
		url = args[0]
	}
	count, _ := cmd.Flags().GetInt("count")
	ouiFlag, _ := cmd.Flags().GetString("oui-db")
	staFlag, _ := cmd.Flags().GetString("sta")

	filter, err := stationFilter(staFlag)
	if err != nil {
		return err
	}

	if path := ouiPath(ouiFlag); path != "" {
		if db, err = openVendors(path); err != nil {
			return err
		}
	}

	s, err := broker.NewSubscriber(url, base_def.TOPIC_ENTITY)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	for n := 0; count == 0 || n < count; {
		_, data, err := s.Recv(time.Second)
		if err == mangos.ErrRecvTimeout {
			continue
		} else if err != nil {
			return err
		}

		pb, err := broker.ParseStationEvent(data)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
			continue
		}
		if !matchEvent(pb, filter) {
			continue
		}
		printEvent(out, pb, db)
		n++
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "Print station events published by ap.wifid",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watch,
	}
	watchCmd.Flags().IntP("count", "n", 0, "exit after this many events")
	watchCmd.Flags().String("oui-db", "", "path to OUI database file")
	watchCmd.Flags().String("sta", "", "only show events for this station")
	return watchCmd
}
