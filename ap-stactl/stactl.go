/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


// ap-stactl inspects station association state offline: it replays recorded
// driver traces, decodes association elements and follows the station events
// published by ap.wifid.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"bgsta/ap_common/staassoc"

	"github.com/fatih/color"
	"github.com/klauspost/oui"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const pname = "ap-stactl"

// AppFs is the filesystem traces and the OUI database are read from.
var AppFs = afero.NewOsFs()

type vendorDB interface {
	Query(string) (*oui.Entry, error)
}

func silenceUsage(cmd *cobra.Command, args []string) {
	// Set after argument validation, so only usage errors print usage.
	cmd.SilenceUsage = true

	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
}

// ouiPath picks the OUI database: the command line wins, then $APROOT.
func ouiPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if apRoot, ok := os.LookupEnv("APROOT"); ok {
		return filepath.Join(apRoot, "etc", "oui.txt")
	}
	return ""
}

func openVendors(path string) (vendorDB, error) {
	f, err := AppFs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening OUI database")
	}
	defer f.Close()

	db, err := oui.OpenStatic(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return db, nil
}

func vendor(db vendorDB, a staassoc.Addr) string {
	if db == nil {
		return "-"
	}
	entry, err := db.Query(a.String())
	if err != nil || entry == nil {
		return "-"
	}
	return entry.Manufacturer
}

func eventString(ev staassoc.Event) string {
	switch ev {
	case staassoc.Connected:
		return color.GreenString(ev.String())
	case staassoc.Reconnected:
		return color.YellowString(ev.String())
	case staassoc.Disconnected:
		return color.RedString(ev.String())
	}
	return ev.String()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:              pname,
		Short:            "Inspect station association state",
		PersistentPreRun: silenceUsage,
	}
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newIEsCmd())
	rootCmd.AddCommand(newWatchCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", pname, err)
		os.Exit(1)
	}
}
