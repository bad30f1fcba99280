// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"io"
	"sync"

	"github.com/dotandev/padesign/internal/logger"
	"github.com/dotandev/padesign/internal/session"
	"github.com/fatih/color"
)

// Reporter prints session status lines, coloured by level when the output
// is a terminal.
type Reporter struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	Quiet bool
}

func NewReporter(out io.Writer, useColor bool) *Reporter {
	return &Reporter{out: out, color: useColor}
}

func (r *Reporter) Report(message string, level session.Level) {
	logger.Logger.Debug("Status", "level", level.String(), "message", message)
	if r.Quiet && level == session.LevelInfo {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.paint(level)
	c.Fprintf(r.out, "%s %s\n", symbol(level), message)
}

func (r *Reporter) paint(level session.Level) *color.Color {
	var c *color.Color
	switch level {
	case session.LevelSuccess:
		c = color.New(color.FgGreen)
	case session.LevelWarning:
		c = color.New(color.FgYellow)
	case session.LevelError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.Reset)
	}
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func symbol(level session.Level) string {
	switch level {
	case session.LevelSuccess:
		return "[OK]"
	case session.LevelWarning:
		return "[!]"
	case session.LevelError:
		return "[X]"
	}
	return "->"
}
