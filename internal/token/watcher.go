// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/dotandev/padesign/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is how often the watcher re-enumerates devices when no
// filesystem event arrives.
const DefaultPollInterval = 2 * time.Second

// Watcher keeps a Locator's status current. It re-enumerates removable mounts
// on every tick or mount-root event and runs a full Locate only when the
// mount set differs from the previous one.
type Watcher struct {
	locator  *Locator
	interval time.Duration
	roots    []string

	last []string
	seen bool
}

// NewWatcher builds a watcher. roots are directories where the OS creates
// mount points (for example /media or /run/media); events there trigger an
// immediate rescan. Missing roots are ignored.
func NewWatcher(l *Locator, interval time.Duration, roots []string) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{locator: l, interval: interval, roots: roots}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	events, closeFn := w.subscribe()
	defer closeFn()

	w.check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			logger.Logger.Debug("Mount root changed", "path", ev.Name, "op", ev.Op.String())
			w.check(ctx)
		}
	}
}

// Check runs a single comparison pass. It reports whether a Locate ran.
func (w *Watcher) Check(ctx context.Context) bool {
	return w.check(ctx)
}

func (w *Watcher) check(ctx context.Context) bool {
	mounts, err := w.locator.Mounts(ctx)
	if err != nil {
		logger.Logger.Warn("Device enumeration failed", "error", err)
		return false
	}
	if w.seen && slices.Equal(mounts, w.last) {
		return false
	}
	w.last = mounts
	w.seen = true

	if _, err := w.locator.Locate(ctx); err != nil {
		logger.Logger.Debug("Token not located", "error", err)
	}
	return true
}

func (w *Watcher) subscribe() (<-chan fsnotify.Event, func()) {
	if len(w.roots) == 0 {
		return nil, func() {}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Logger.Warn("Filesystem notifications unavailable, polling only", "error", err)
		return nil, func() {}
	}

	added := 0
	for _, root := range w.roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := fw.Add(root); err != nil {
			logger.Logger.Debug("Cannot watch mount root", "path", root, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		_ = fw.Close()
		return nil, func() {}
	}

	go func() {
		for err := range fw.Errors {
			logger.Logger.Debug("Filesystem watcher error", "error", err)
		}
	}()

	return fw.Events, func() { _ = fw.Close() }
}
