// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Spinner animates a single status line on a terminal.
type Spinner struct {
	out       io.Writer
	frames    []string
	current   int
	message   string
	done      chan struct{}
	stopped   chan struct{}
	mu        sync.Mutex
	isRunning bool
}

func NewSpinner() *Spinner {
	return NewSpinnerTo(os.Stderr)
}

func NewSpinnerTo(out io.Writer) *Spinner {
	return &Spinner{
		out:    out,
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

func (s *Spinner) Start(message string) {
	s.mu.Lock()
	if s.isRunning {
		s.message = message
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.message = message
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				s.mu.Lock()
				fmt.Fprint(s.out, "\r\033[K")
				s.mu.Unlock()
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.out, "\r%s %s", s.frames[s.current], s.message)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			}
		}
	}()
}

// Update swaps the message shown next to the animation.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	done, stopped := s.done, s.stopped
	s.mu.Unlock()

	close(done)
	<-stopped
}

func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "\r✓ %s\n", message)
}

func (s *Spinner) StopWithError(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "\r✗ %s\n", message)
}
