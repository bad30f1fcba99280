// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks for PINs on a terminal without echo. When input is not a
// terminal it reads one line per prompt, which is how --pin-stdin works.
type Prompter struct {
	in     io.Reader
	out    io.Writer
	fd     int
	tty    bool
	reader *bufio.Reader

	readPassword func(fd int) ([]byte, error)
}

// NewPrompter prompts on out and reads from in.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	p := &Prompter{
		in:           in,
		out:          out,
		fd:           int(in.Fd()),
		reader:       bufio.NewReader(in),
		readPassword: term.ReadPassword,
	}
	p.tty = term.IsTerminal(p.fd)
	return p
}

// NewLinePrompter reads PINs as plain lines from r. ConfirmRetry always
// answers no since nobody can be asked.
func NewLinePrompter(r io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: r, out: out, reader: bufio.NewReader(r)}
}

func (p *Prompter) PromptPIN(ctx context.Context) ([]byte, bool, error) {
	return p.ReadSecret(ctx, "Enter PIN: ")
}

// ReadSecret shows label and reads one secret. ok is false on end of input.
// The returned buffer belongs to the caller, who should wipe it once parsed.
func (p *Prompter) ReadSecret(ctx context.Context, label string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if p.tty {
		fmt.Fprint(p.out, label)
		raw, err := p.readPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			if err == io.EOF {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("read PIN: %w", err)
		}
		return raw, true, nil
	}

	line, err := p.reader.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read PIN: %w", err)
	}
	return bytes.TrimRight(line, "\r\n"), true, nil
}

func (p *Prompter) ConfirmRetry(ctx context.Context, message string) (bool, error) {
	if !p.tty {
		fmt.Fprintln(p.out, message)
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", message)
	line, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
