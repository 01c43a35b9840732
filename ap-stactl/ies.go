/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"bgsta/common/wifi"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tatsushid/go-prettytable"
)

// decodeHex accepts hostapd's plain hex as well as colon or space separated
// octets.
func decodeHex(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.NewReplacer(":", "", " ", "", "\t", "").Replace(s)
	buf, err := hex.DecodeString(s)
	return buf, errors.Wrap(err, "bad element buffer")
}

func ies(cmd *cobra.Command, args []string) error {
	buf, err := decodeHex(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	elems, perr := wifi.ParseElements(buf)

	table, _ := prettytable.NewTable(
		prettytable.Column{Header: "Element"},
		prettytable.Column{Header: "Len", AlignRight: true},
		prettytable.Column{Header: "Body"},
	)
	table.Separator = "  "
	for _, e := range elems {
		table.AddRow(e, len(e.Info), hex.EncodeToString(e.Info))
	}
	out.Write(table.Bytes())

	caps, _ := wifi.Summarize(buf)
	fmt.Fprintf(out, "\nssid: %q\nmodes: %s\nrsn: %v\n", caps.SSID,
		caps.Modes(), caps.RSN)
	if caps.MLDAddr != nil {
		fmt.Fprintf(out, "mld: %s\n", caps.MLDAddr)
	}
	if caps.FT {
		fmt.Fprintf(out, "mdid: %04x\n", caps.MDID)
	}
	if len(caps.Vendors) > 0 {
		fmt.Fprintf(out, "vendors: %s\n", strings.Join(caps.Vendors, ","))
	}

	return perr
}

func newIEsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ies <hex>...",
		Short: "Decode a buffer of association elements",
		Args:  cobra.MinimumNArgs(1),
		RunE:  ies,
	}
}
