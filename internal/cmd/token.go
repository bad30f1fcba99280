// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/dotandev/padesign/internal/session"
	"github.com/dotandev/padesign/internal/token"
	"github.com/spf13/cobra"
)

var tokenWatchIntervalFlag time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect USB token presence",
	Long: `Find the removable device that carries the encrypted key.

Available subcommands:
  locate  - Scan once and print where the key file is
  watch   - Follow token insertion and removal until interrupted`,
}

var tokenLocateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Scan removable devices once for the key file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := newLocator(appConfig).Locate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Mount:    %s\n", tok.MountPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Key file: %s\n", tok.KeyPath)
		return nil
	},
}

var tokenWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report token insertion and removal",
	Long: `Keep scanning removable devices and print a line whenever the token
appears, disappears or moves to another mount. The scan re-runs only when
the set of mounted devices changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		locator := newLocator(cfg)
		reporter := newReporter(cmd)

		locator.OnChange(func(st token.Status) {
			if st.State == token.StateFound {
				reporter.Report("Token present at "+st.MountPath, session.LevelSuccess)
				return
			}
			reporter.Report("No token found. Insert the USB key.", session.LevelWarning)
		})

		interval := cfg.Token.PollInterval
		if tokenWatchIntervalFlag > 0 {
			interval = tokenWatchIntervalFlag
		}
		return token.NewWatcher(locator, interval, cfg.Token.WatchRoots).Run(cmd.Context())
	},
}

func init() {
	tokenWatchCmd.Flags().DurationVar(&tokenWatchIntervalFlag, "interval", 0, "Polling interval (default from config, 2s)")

	tokenCmd.AddCommand(tokenLocateCmd)
	tokenCmd.AddCommand(tokenWatchCmd)
	rootCmd.AddCommand(tokenCmd)
}
