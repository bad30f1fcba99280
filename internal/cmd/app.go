// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/dotandev/padesign/internal/config"
	"github.com/dotandev/padesign/internal/journal"
	"github.com/dotandev/padesign/internal/logger"
	"github.com/dotandev/padesign/internal/metrics"
	"github.com/dotandev/padesign/internal/terminal"
	"github.com/dotandev/padesign/internal/token"
	"github.com/spf13/cobra"
)

// newEnumerator is swapped in tests for a simulated device set.
var newEnumerator = func(cfg *config.Config) token.MountEnumerator {
	return token.NewSystemEnumerator(cfg.Token.MountRoots)
}

func newLocator(cfg *config.Config) *token.Locator {
	return token.NewLocator(newEnumerator(cfg), token.Config{
		KeyFileName:       cfg.KeyFileName,
		PublicKeyFileName: cfg.PublicKeyFileName,
		MaxDepth:          cfg.Token.MaxDepth,
	})
}

func newReporter(cmd *cobra.Command) *terminal.Reporter {
	out := cmd.ErrOrStderr()
	useColor := false
	if f, ok := out.(*os.File); ok && !NoColorFlag {
		useColor = terminal.IsTTY(f)
	}
	r := terminal.NewReporter(out, useColor)
	r.Quiet = QuietFlag
	return r
}

// newPrompter reads PINs from the terminal, or one per line from stdin when
// pinStdin is set or stdin is not a file.
func newPrompter(cmd *cobra.Command, pinStdin bool) *terminal.Prompter {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !pinStdin {
		return terminal.NewPrompter(f, cmd.ErrOrStderr())
	}
	return terminal.NewLinePrompter(in, cmd.ErrOrStderr())
}

// openRecorder opens the journal for commands that only write to it. A
// journal that cannot be opened is logged and replaced with a no-op so it
// never blocks signing.
func openRecorder(cfg *config.Config) (journal.Recorder, func()) {
	if cfg.JournalPath == "" {
		return journal.Nop{}, func() {}
	}
	store, err := journal.Open(cfg.JournalPath)
	if err != nil {
		logger.Logger.Warn("Journal unavailable, operations will not be recorded", "path", cfg.JournalPath, "error", err)
		return journal.Nop{}, func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Logger.Warn("Failed to close journal", "error", err)
		}
	}
}

// openMetrics returns per-command collectors and a flush that writes them to
// the configured textfile. Without a textfile the collectors are nil and
// every observation is a no-op.
func openMetrics(cfg *config.Config) (*metrics.Metrics, func()) {
	if cfg.MetricsTextfile == "" {
		return nil, func() {}
	}
	m := metrics.NewCommand()
	return m, func() {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Logger.Warn("Failed to write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
		}
	}
}
