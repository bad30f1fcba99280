// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/journal"
	"github.com/dotandev/padesign/internal/keystore"
	"github.com/dotandev/padesign/internal/keywrap"
	"github.com/dotandev/padesign/internal/logger"
	"github.com/dotandev/padesign/internal/session"
	"github.com/dotandev/padesign/internal/signer"
	"github.com/dotandev/padesign/internal/telemetry"
	"github.com/dotandev/padesign/internal/terminal"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

// pendingSuffix marks staged key files; it does not end in .key so a token
// scan never picks them up.
const pendingSuffix = ".pending"

var (
	keygenOutFlag      string
	keygenBitsFlag     int
	keygenPinStdinFlag bool
	keygenLegacyFlag   bool
	keygenForceFlag    bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a keypair and store the private key encrypted under a PIN",
	Long: `Generate an RSA keypair (e = 65537) and write two files:

  encryptedPrivateKey.key   the private key, AES-256 encrypted under a key
                            derived from your PIN
  public.key                the public key in PEM form, for verifiers

Without --out the files are written to the root of the inserted token.
The PIN is asked for twice and must be a positive number.`,
	Example: `  # Write to the inserted USB token
  padesign keygen

  # Write to a directory, reading the PIN twice from stdin
  printf '1234\n1234\n' | padesign keygen --out ./keys --pin-stdin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := appConfig

		bits := cfg.KeyBits
		if keygenBitsFlag != 0 {
			bits = keygenBitsFlag
		}
		legacy := cfg.LegacyKeyFormat || keygenLegacyFlag

		outDir, err := keygenTarget(ctx, keygenOutFlag)
		if err != nil {
			return err
		}

		recorder, closeJournal := openRecorder(cfg)
		defer closeJournal()
		m, flushMetrics := openMetrics(cfg)
		defer flushMetrics()

		start := time.Now()
		ctx, span := telemetry.StartSpan(ctx, "keygen",
			attribute.Int("key.bits", bits),
			attribute.Bool("key.legacy_format", legacy),
		)
		err = runKeygen(ctx, cmd, outDir, bits, legacy)
		telemetry.EndSpan(span, err)

		entry := &journal.Entry{
			Operation:   journal.OpKeygen,
			Outcome:     journal.OutcomeGenerated,
			TokenMount:  outDir,
			DurationMS:  time.Since(start).Milliseconds(),
			ToolVersion: Version,
		}
		if err != nil {
			entry.Outcome = journal.OutcomeFailed
			entry.Error = err.Error()
		}
		m.ObserveOperation(string(journal.OpKeygen), string(entry.Outcome), time.Since(start))
		if recErr := recorder.Record(context.WithoutCancel(ctx), entry); recErr != nil {
			logger.Logger.Warn("Failed to record keygen", "error", recErr)
		}
		return err
	},
}

// keygenTarget returns out, or the mount of the inserted token when out is
// empty.
func keygenTarget(ctx context.Context, out string) (string, error) {
	if out != "" {
		info, err := os.Stat(out)
		if err != nil {
			return "", errors.WrapIOFailure("open output directory", err)
		}
		if !info.IsDir() {
			return "", errors.WrapValidationError(out + " is not a directory")
		}
		return filepath.Abs(out)
	}

	mounts, err := newLocator(appConfig).Mounts(ctx)
	if err != nil {
		return "", err
	}
	if len(mounts) == 0 {
		return "", errors.WrapTokenNotFound("insert the USB key or pass --out")
	}
	return mounts[0], nil
}

func runKeygen(ctx context.Context, cmd *cobra.Command, outDir string, bits int, legacy bool) error {
	reporter := newReporter(cmd)
	keyPath := filepath.Join(outDir, appConfig.KeyFileName)
	pubPath := filepath.Join(outDir, appConfig.PublicKeyFileName)

	if !keygenForceFlag {
		for _, p := range []string{keyPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return errors.WrapValidationError(p + " already exists, use --force to replace it")
			}
		}
	}

	pin, err := readNewPIN(ctx, newPrompter(cmd, keygenPinStdinFlag))
	if err != nil {
		return err
	}
	defer pin.Wipe()

	reporter.Report(fmt.Sprintf("Generating %d-bit RSA key...", bits), session.LevelInfo)
	kp, err := signer.GenerateKeypair(bits)
	if err != nil {
		return err
	}
	defer kp.Wipe()

	rec, err := keywrap.WrapPrivateKey(kp.PrivateKeyPEM, pin)
	if err != nil {
		return err
	}
	if legacy {
		rec.Version = keywrap.FormatLegacy
	}

	if err := writeKeyPair(keyPath, pubPath, rec, kp.PublicKeyPEM); err != nil {
		return err
	}

	logger.Logger.Info("Keypair written", "key_file", keyPath, "public_file", pubPath, "bits", bits)
	reporter.Report("Encrypted private key written to "+keyPath, session.LevelSuccess)
	reporter.Report("Public key written to "+pubPath, session.LevelSuccess)
	fmt.Fprintln(cmd.OutOrStdout(), pubPath)
	return nil
}

// writeKeyPair stages both files beside their targets and renames them into
// place. On any failure neither half is left behind.
func writeKeyPair(keyPath, pubPath string, rec *keywrap.Record, pubPEM []byte) error {
	keyTmp := keyPath + pendingSuffix
	pubTmp := pubPath + pendingSuffix
	cleanup := func(paths ...string) {
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logger.Logger.Warn("Failed to remove partial key file", "path", p, "error", err)
			}
		}
	}

	if err := keystore.WriteWrapped(keyTmp, rec); err != nil {
		return err
	}
	if err := keystore.WritePublic(pubTmp, pubPEM); err != nil {
		cleanup(keyTmp)
		return err
	}
	if err := os.Rename(keyTmp, keyPath); err != nil {
		cleanup(keyTmp, pubTmp)
		return errors.WrapIOFailure("install private key", err)
	}
	if err := os.Rename(pubTmp, pubPath); err != nil {
		cleanup(keyPath, pubTmp)
		return errors.WrapIOFailure("install public key", err)
	}
	return nil
}

// readNewPIN asks for the PIN twice and returns it when both entries agree.
func readNewPIN(ctx context.Context, p *terminal.Prompter) (keywrap.PIN, error) {
	first, ok, err := p.ReadSecret(ctx, "New PIN: ")
	if err != nil {
		return keywrap.PIN{}, err
	}
	if !ok {
		return keywrap.PIN{}, errors.WrapCancelled("keygen")
	}
	pin, err := keywrap.ParsePINBytes(first)
	keywrap.WipeBytes(first)
	if err != nil {
		return keywrap.PIN{}, err
	}

	second, ok, err := p.ReadSecret(ctx, "Repeat PIN: ")
	if err != nil {
		pin.Wipe()
		return keywrap.PIN{}, err
	}
	if !ok {
		pin.Wipe()
		return keywrap.PIN{}, errors.WrapCancelled("keygen")
	}
	again, err := keywrap.ParsePINBytes(second)
	keywrap.WipeBytes(second)
	if err != nil || !pin.Equal(again) {
		pin.Wipe()
		again.Wipe()
		return keywrap.PIN{}, errors.WrapInvalidPin("PINs do not match")
	}
	again.Wipe()
	return pin, nil
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOutFlag, "out", "o", "", "Directory to write the key files to (default: the inserted token)")
	keygenCmd.Flags().IntVar(&keygenBitsFlag, "bits", 0, "RSA modulus size in bits (default from config, 4096)")
	keygenCmd.Flags().BoolVar(&keygenPinStdinFlag, "pin-stdin", false, "Read the PIN from stdin instead of the terminal")
	keygenCmd.Flags().BoolVar(&keygenLegacyFlag, "legacy-format", false, "Write the key file without the format version byte")
	keygenCmd.Flags().BoolVar(&keygenForceFlag, "force", false, "Replace existing key files")

	rootCmd.AddCommand(keygenCmd)
}
