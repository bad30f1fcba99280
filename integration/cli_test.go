// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

// Package integration drives a built padesign binary end to end. Build it
// first with `go build -o padesign ./cmd/padesign` or point
// $PADESIGN_BINARY at it; without a binary the tests are skipped.
package integration

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "padesign.exe"
	}
	return "padesign"
}

func binaryPath(t *testing.T) string {
	t.Helper()

	if env := os.Getenv("PADESIGN_BINARY"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env
		}
		t.Fatalf("PADESIGN_BINARY is set to %q but the file does not exist", env)
	}

	root := repoRoot(t)
	for _, c := range []string{
		filepath.Join(root, binaryName()),
		filepath.Join(root, "bin", binaryName()),
		filepath.Join(root, "dist", binaryName()),
	} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	t.Skipf("padesign binary not built; run `go build -o %s ./cmd/padesign` or set $PADESIGN_BINARY", binaryName())
	return ""
}

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find go.mod; are you inside the repo?")
		}
		dir = parent
	}
}

// sandbox is an isolated HOME with a directory standing in for the USB token.
type sandbox struct {
	home string
	usb  string
	docs string
}

func newSandbox(t *testing.T) *sandbox {
	t.Helper()
	s := &sandbox{home: t.TempDir(), usb: t.TempDir(), docs: t.TempDir()}
	return s
}

func (s *sandbox) env() []string {
	env := []string{
		"HOME=" + s.home,
		"PATH=" + os.Getenv("PATH"),
		"NO_COLOR=1",
		"PADES_KEY_BITS=2048",
		"PADES_TOKEN_MOUNT_ROOTS=" + s.usb,
		"PADES_JOURNAL_PATH=" + filepath.Join(s.home, "journal.db"),
	}
	return env
}

func (s *sandbox) run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	bin := binaryPath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = s.docs
	cmd.Env = s.env()
	cmd.Stdin = strings.NewReader(stdin)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func assertExitCode(t *testing.T, want int, err error) {
	t.Helper()
	if got := exitCode(err); got != want {
		t.Errorf("exit code: got %d, want %d (err=%v)", got, want, err)
	}
}

func assertContains(t *testing.T, label, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("%s: expected to find %q in:\n%s", label, needle, haystack)
	}
}

func TestHelpListsCommands(t *testing.T) {
	s := newSandbox(t)
	stdout, stderr, err := s.run(t, "", "--help")
	assertExitCode(t, 0, err)
	for _, sub := range []string{"keygen", "sign", "verify", "token", "history", "daemon", "version"} {
		assertContains(t, "--help output", stdout+stderr, sub)
	}
}

func TestUnknownCommand(t *testing.T) {
	s := newSandbox(t)
	_, stderr, err := s.run(t, "", "not-a-real-command")
	if exitCode(err) == 0 {
		t.Error("expected non-zero exit for unknown command")
	}
	assertContains(t, "stderr for unknown command", stderr, "unknown")
}

func TestVersion(t *testing.T) {
	s := newSandbox(t)
	stdout, _, err := s.run(t, "", "version")
	assertExitCode(t, 0, err)
	assertContains(t, "version output", stdout, "padesign version")
}

func TestKeygenSignVerify(t *testing.T) {
	s := newSandbox(t)

	_, stderr, err := s.run(t, "2468\n2468\n", "keygen", "--pin-stdin")
	assertExitCode(t, 0, err)
	if _, statErr := os.Stat(filepath.Join(s.usb, "encryptedPrivateKey.key")); statErr != nil {
		t.Fatalf("key file not written: %v\n%s", statErr, stderr)
	}

	doc := filepath.Join(s.docs, "contract.pdf")
	if err := os.WriteFile(doc, []byte("%PDF-1.4 hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := s.run(t, "2468\n", "sign", "contract.pdf", "--pin-stdin")
	assertExitCode(t, 0, err)
	assertContains(t, "sign stdout", stdout, "contract.pdf.sig")
	assertContains(t, "sign stderr", stderr, "Signed contract.pdf")

	pub := filepath.Join(s.usb, "public.key")
	stdout, _, err = s.run(t, "", "verify", "contract.pdf", "--public-key", pub)
	assertExitCode(t, 0, err)
	assertContains(t, "verify stdout", stdout, "signature valid")

	if err := os.WriteFile(doc, []byte("%PDF-1.4 hello world!"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, stderr, err = s.run(t, "", "verify", "contract.pdf", "--public-key", pub)
	assertExitCode(t, 1, err)
	assertContains(t, "tampered verify stderr", stderr, "NOT valid")

	stdout, _, err = s.run(t, "", "history")
	assertExitCode(t, 0, err)
	for _, op := range []string{"keygen", "sign", "verify"} {
		assertContains(t, "history", stdout, op)
	}
}

func TestSignWithWrongPIN(t *testing.T) {
	s := newSandbox(t)
	_, _, err := s.run(t, "1111\n1111\n", "keygen", "--pin-stdin")
	assertExitCode(t, 0, err)

	doc := filepath.Join(s.docs, "report.pdf")
	if err := os.WriteFile(doc, []byte("report"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, stderr, err := s.run(t, "2222\n", "sign", "report.pdf", "--pin-stdin")
	assertExitCode(t, 1, err)
	assertContains(t, "stderr", stderr, "Wrong PIN")
	if _, statErr := os.Stat(doc + ".sig"); !os.IsNotExist(statErr) {
		t.Errorf("no signature must be written after a wrong PIN, stat err=%v", statErr)
	}
}
