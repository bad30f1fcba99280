// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/session"
	"github.com/spf13/cobra"
)

var (
	verifyPublicKeyFlag string
	verifySignatureFlag string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <document>",
	Short: "Check a document against its detached signature",
	Long: `Verify that <document>.sig (or --signature) is a valid signature of the
document under the given public key. No token or PIN is needed.

The command exits with status 0 when the signature is valid and non-zero
otherwise.`,
	Example: `  padesign verify contract.pdf --public-key public.key
  padesign verify contract.pdf --public-key public.key --signature other.sig`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		recorder, closeJournal := openRecorder(cfg)
		defer closeJournal()
		m, flushMetrics := openMetrics(cfg)
		defer flushMetrics()

		sess := session.New(session.Options{
			Reporter:        newReporter(cmd),
			Journal:         recorder,
			Metrics:         m,
			SignatureSuffix: cfg.SignatureSuffix,
			ToolVersion:     Version,
		})
		if err := sess.SelectDocument(args[0]); err != nil {
			return err
		}

		res, err := sess.Verify(ctx, verifyPublicKeyFlag, verifySignatureFlag)
		if err != nil {
			return err
		}
		if !res.Valid {
			return fmt.Errorf("%w: %s", errors.ErrInvalidSignature, res.Reason)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: signature valid\n", res.Document)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyPublicKeyFlag, "public-key", "k", "", "PEM public key file")
	verifyCmd.Flags().StringVarP(&verifySignatureFlag, "signature", "s", "", "Signature file (default <document>.sig)")
	_ = verifyCmd.MarkFlagRequired("public-key")

	rootCmd.AddCommand(verifyCmd)
}
