// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dotandev/padesign/internal/cmd"
	"github.com/dotandev/padesign/internal/config"
	"github.com/dotandev/padesign/internal/crashreport"
)

// Version is injected at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd.Version = Version

	// Crash reporting is opt-in; a broken config leaves it off and the
	// command itself reports the config error.
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	reporter := crashreport.New(crashreport.Config{
		Enabled:   cfg.Crash.Enabled,
		SentryDSN: cfg.Crash.SentryDSN,
		Endpoint:  cfg.Crash.Endpoint,
		Version:   Version,
	})
	defer reporter.HandlePanic(context.Background(), "padesign")

	if err := cmd.Execute(); err != nil {
		if cmd.IsInterrupted(err) {
			os.Exit(cmd.InterruptExitCode)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
