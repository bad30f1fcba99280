// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/session"
	"github.com/dotandev/padesign/internal/token"
	"github.com/dotandev/padesign/internal/watch"
	"github.com/spf13/cobra"
)

var (
	signWaitFlag     time.Duration
	signPinStdinFlag bool
)

var signCmd = &cobra.Command{
	Use:   "sign <document>",
	Short: "Sign a document with the key on the inserted token",
	Long: `Sign a document with the private key stored on the USB token.

The token is located among the mounted removable devices, the PIN is asked
for and the decrypted key signs the SHA-256 digest of the document. The
signature is written next to the document as <document>.sig.

A wrong PIN can be retried; attempts are rate limited.`,
	Example: `  padesign sign contract.pdf
  padesign sign contract.pdf --wait 2m
  echo 1234 | padesign sign contract.pdf --pin-stdin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig
		locator := newLocator(cfg)
		reporter := newReporter(cmd)

		if signWaitFlag > 0 {
			if err := waitForToken(ctx, cmd, locator, signWaitFlag); err != nil {
				return err
			}
		}

		recorder, closeJournal := openRecorder(cfg)
		defer closeJournal()
		m, flushMetrics := openMetrics(cfg)
		defer flushMetrics()

		sess := session.New(session.Options{
			Tokens:               locator,
			Prompter:             newPrompter(cmd, signPinStdinFlag),
			Reporter:             reporter,
			Journal:              recorder,
			Metrics:              m,
			SignatureSuffix:      cfg.SignatureSuffix,
			PinAttemptsPerMinute: cfg.PinAttemptsPerMinute,
			ToolVersion:          Version,
		})

		if err := sess.SelectDocument(args[0]); err != nil {
			return err
		}
		res, err := sess.Sign(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.SignaturePath)
		return nil
	},
}

// waitForToken polls until a token shows up or timeout passes.
func waitForToken(ctx context.Context, cmd *cobra.Command, locator *token.Locator, timeout time.Duration) error {
	poller := watch.NewPoller(watch.PollerConfig{
		MaxAttempts:     1 << 20,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		TimeoutDuration: timeout,
	})

	spinner := watch.NewSpinnerTo(cmd.ErrOrStderr())
	spinner.Start("Waiting for the USB token...")

	result, err := watch.Until(ctx, poller, locator.Locate, func(attempt int, lastErr error) {
		if attempt > 1 {
			spinner.Update(fmt.Sprintf("Waiting for the USB token... (check %d)", attempt))
		}
	})
	if err != nil {
		spinner.StopWithError("Cancelled")
		return errors.WrapCancelled("wait for token")
	}
	if !result.Found {
		spinner.StopWithError("No token found")
		if result.Error != nil {
			return result.Error
		}
		return errors.WrapTokenNotFound("gave up waiting")
	}
	spinner.StopWithMessage("Token found at " + result.Data.MountPath)
	return nil
}

func init() {
	signCmd.Flags().DurationVar(&signWaitFlag, "wait", 0, "Wait up to this long for the token to be inserted")
	signCmd.Flags().BoolVar(&signPinStdinFlag, "pin-stdin", false, "Read the PIN from stdin instead of the terminal")

	rootCmd.AddCommand(signCmd)
}
