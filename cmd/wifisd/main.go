// Copyright (c) the wifisd authors
// Licensed under the MIT license

// wifisd is a command-line client for WiFi@SD and WiFi@CF cards: it
// discovers cards on the local network, lists the FAT32 volume they
// expose, and downloads files from it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ktctools/wifisd/internal/config"
)

var (
	verboseFlag bool
	configFlag  string

	cfg config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wifisd",
		Short:         "client for WiFi@SD/CF wireless storage cards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logrus.SetLevel(logrus.WarnLevel)
			if verboseFlag {
				logrus.SetLevel(logrus.DebugLevel)
			}

			path := configFlag
			if path == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				if path, err = config.Find(wd); err != nil {
					return err
				}
			}
			var err error
			cfg, err = config.Load(path)
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to a .wifisdrc (default: search upward)")

	root.AddCommand(newDiscoverCmd())
	root.AddCommand(newLsCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newWatchCmd())
	return root
}

func msDuration(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
