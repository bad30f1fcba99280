// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dotandev/padesign/internal/config"
	"github.com/dotandev/padesign/internal/logger"
	"github.com/dotandev/padesign/internal/shutdown"
	"github.com/dotandev/padesign/internal/telemetry"
	"github.com/spf13/cobra"
)

// Global flag variables
var (
	LogLevelFlag string
	NoColorFlag  bool
	QuietFlag    bool
)

// appConfig is loaded once per invocation by the root pre-run hook.
var appConfig *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "padesign",
	Short: "Detached PDF signing with a key kept on a USB token",
	Long: `padesign signs PDF documents with an RSA private key that never leaves
a removable token. The key is stored encrypted under a numeric PIN and is
decrypted in memory only for the duration of one signature.

Signatures are written next to the document as <document>.sig and can be
checked by anyone holding the matching public key.

Examples:
  padesign keygen --out /media/usb           Create a keypair on the token
  padesign sign contract.pdf                 Sign with the inserted token
  padesign sign contract.pdf --wait 1m       Wait for the token first
  padesign verify contract.pdf --public-key public.key
  padesign token watch                       Follow token presence
  padesign history                           Show recent operations

Get started with 'padesign keygen --help'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if LogLevelFlag != "" {
			cfg.LogLevel = LogLevelFlag
		}

		logger.SetOutput(cmd.ErrOrStderr(), cfg.LogJSON)
		logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
		logger.Logger.Debug("Configuration loaded", "config", cfg.String())

		if err := cfg.CheckVersion(Version); err != nil {
			return err
		}

		cleanup, err := telemetry.Init(cmd.Context(), telemetry.Config{
			Enabled:        cfg.Tracing.Enabled,
			ExporterURL:    cfg.Tracing.OTLPURL,
			ServiceName:    "padesign",
			ServiceVersion: Version,
		})
		if err != nil {
			return err
		}
		registerShutdownHook("telemetry", func(ctx context.Context) error {
			_ = ctx
			cleanup()
			return nil
		})

		appConfig = cfg
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; the returned error then satisfies IsInterrupted.
func Execute() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return executeWithSignals(ctx, cancel, sigCh, shutdown.NewCoordinator(), func(execCtx context.Context) error {
		return rootCmd.ExecuteContext(execCtx)
	})
}

func executeWithSignals(
	ctx context.Context,
	cancel context.CancelFunc,
	sigCh <-chan os.Signal,
	coordinator *shutdown.Coordinator,
	run func(context.Context) error,
) error {
	setShutdownCoordinator(coordinator)
	defer clearShutdownCoordinator()

	interrupted := make(chan struct{})
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logger.Logger.Info("Received signal, shutting down", "signal", sig.String())
			close(interrupted)
			cancel()
		case <-done:
		}
	}()

	err := run(ctx)
	close(done)

	runShutdownHooksWithTimeout(coordinator, shutdownTimeout)

	select {
	case <-interrupted:
		return ErrInterrupted
	default:
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&LogLevelFlag,
		"log-level",
		"",
		"Override the log level (debug, info, warn, error)",
	)

	rootCmd.PersistentFlags().BoolVar(
		&NoColorFlag,
		"no-color",
		false,
		"Disable coloured status output",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&QuietFlag,
		"quiet",
		"q",
		false,
		"Only print warnings and errors",
	)
}
