// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/journal"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimitFlag int
	historyShowFlag  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent keygen, sign and verify operations",
	Long: `List the operations recorded in the local journal, newest first.

The journal stores document names, digests and outcomes. It never stores
PINs or key material.`,
	Example: `  padesign history
  padesign history --limit 10
  padesign history --show 3f1c...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig
		out := cmd.OutOrStdout()

		if cfg.JournalPath == "" {
			return errors.WrapValidationError("journal is disabled (journal_path is empty)")
		}

		store, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("failed to open journal: %v", err))
		}
		defer store.Close()

		if err := store.Cleanup(ctx, journal.DefaultTTL, journal.DefaultMaxEntries); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: journal cleanup failed: %v\n", err)
		}

		if historyShowFlag != "" {
			e, err := store.Load(ctx, historyShowFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ID:        %s\n", e.ID)
			fmt.Fprintf(out, "Time:      %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Operation: %s\n", e.Operation)
			fmt.Fprintf(out, "Outcome:   %s\n", e.Outcome)
			if e.Document != "" {
				fmt.Fprintf(out, "Document:  %s (%s)\n", e.Document, humanize.Bytes(uint64(e.DocumentSize)))
				fmt.Fprintf(out, "SHA-256:   %s\n", e.DocumentSHA256)
			}
			if e.TokenMount != "" {
				fmt.Fprintf(out, "Token:     %s\n", e.TokenMount)
			}
			if e.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", e.Error)
			}
			fmt.Fprintf(out, "Duration:  %dms\n", e.DurationMS)
			fmt.Fprintf(out, "Version:   %s\n", e.ToolVersion)
			return nil
		}

		entries, err := store.List(ctx, historyLimitFlag)
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("failed to list journal: %v", err))
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No operations recorded.")
			return nil
		}

		fmt.Fprintf(out, "%-36s %-16s %-8s %-10s %s\n", "ID", "When", "Op", "Outcome", "Document")
		for _, e := range entries {
			doc := filepath.Base(e.Document)
			if e.Document == "" {
				doc = "-"
			}
			fmt.Fprintf(out, "%-36s %-16s %-8s %-10s %s\n",
				e.ID, humanize.Time(e.CreatedAt), e.Operation, e.Outcome, doc)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 50, "Maximum number of entries to show")
	historyCmd.Flags().StringVar(&historyShowFlag, "show", "", "Show one entry in full")

	rootCmd.AddCommand(historyCmd)
}
