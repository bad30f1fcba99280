// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dotandev/padesign/internal/errors"
	"github.com/dotandev/padesign/internal/logger"
)

const (
	// DefaultKeyFileName is the preferred key file on a token.
	DefaultKeyFileName = "encryptedPrivateKey.key"
	// DefaultPublicKeyFileName is written beside the private key and never
	// selected as one.
	DefaultPublicKeyFileName = "public.key"
	// DefaultMaxDepth bounds the directory walk on each mount.
	DefaultMaxDepth = 8

	keyExtension = ".key"
)

// Token is a removable mount carrying a key file.
type Token struct {
	MountPath string
	KeyPath   string
}

type State int

const (
	StateUnknown State = iota
	StateFound
	StateNotFound
)

func (s State) String() string {
	switch s {
	case StateFound:
		return "found"
	case StateNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Status is the observable token presence.
type Status struct {
	State     State
	MountPath string
	CheckedAt time.Time
}

type Config struct {
	KeyFileName       string
	PublicKeyFileName string
	MaxDepth          int
}

// Locator finds the token among removable mounts. Calls are serialised since
// device enumeration is not assumed to be reentrant.
type Locator struct {
	mu   sync.Mutex
	enum MountEnumerator
	cfg  Config

	statusMu    sync.RWMutex
	status      Status
	subscribers []func(Status)

	now func() time.Time
}

func NewLocator(enum MountEnumerator, cfg Config) *Locator {
	if cfg.KeyFileName == "" {
		cfg.KeyFileName = DefaultKeyFileName
	}
	if cfg.PublicKeyFileName == "" {
		cfg.PublicKeyFileName = DefaultPublicKeyFileName
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &Locator{
		enum: enum,
		cfg:  cfg,
		now:  time.Now,
	}
}

// Status returns the last observed presence state.
func (l *Locator) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

// OnChange registers fn to be called whenever the presence state or the
// mount path changes.
func (l *Locator) OnChange(fn func(Status)) {
	if fn == nil {
		return
	}
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	l.subscribers = append(l.subscribers, fn)
}

// Mounts returns the sorted, de-duplicated removable mount set.
func (l *Locator) Mounts(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mounts(ctx)
}

func (l *Locator) mounts(ctx context.Context) ([]string, error) {
	raw, err := l.enum.RemovableMounts(ctx)
	if err != nil {
		return nil, errors.WrapIOFailure("enumerate removable devices", err)
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		m = filepath.Clean(m)
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Locate scans every removable mount and returns the token. A mount holding
// a file named exactly KeyFileName beats one holding only other .key files;
// ties go to the lexicographically first mount path. The public key file is
// never taken for a private key.
func (l *Locator) Locate(ctx context.Context) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mounts, err := l.mounts(ctx)
	if err != nil {
		l.setStatus(StateNotFound, "")
		return nil, err
	}
	if len(mounts) == 0 {
		l.setStatus(StateNotFound, "")
		return nil, errors.WrapTokenNotFound("no removable devices mounted")
	}

	var fallback *Token
	for _, mount := range mounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keyPath, exact := l.scan(ctx, mount)
		if keyPath == "" {
			continue
		}
		if exact {
			tok := &Token{MountPath: mount, KeyPath: keyPath}
			l.setStatus(StateFound, mount)
			return tok, nil
		}
		if fallback == nil {
			fallback = &Token{MountPath: mount, KeyPath: keyPath}
		}
	}

	if fallback != nil {
		l.setStatus(StateFound, fallback.MountPath)
		return fallback, nil
	}

	l.setStatus(StateNotFound, "")
	return nil, errors.WrapTokenNotFound("no removable device holds a " + keyExtension + " file")
}

// Revalidate re-runs Locate so that a cached token is never trusted across a
// device change. It must be called right before the key file is read.
func (l *Locator) Revalidate(ctx context.Context, cached *Token) (*Token, error) {
	fresh, err := l.Locate(ctx)
	if err != nil {
		return nil, err
	}
	if cached != nil && (cached.MountPath != fresh.MountPath || cached.KeyPath != fresh.KeyPath) {
		logger.Logger.Info("Token changed since last scan", "old_mount", cached.MountPath, "new_mount", fresh.MountPath)
	}
	return fresh, nil
}

// scan walks mount in lexical order. It returns the root-level exact key
// file if present, else the first exact match, else the first .key file that
// is not the public key.
func (l *Locator) scan(ctx context.Context, mount string) (string, bool) {
	root := filepath.Join(mount, l.cfg.KeyFileName)
	if info, err := os.Stat(root); err == nil && info.Mode().IsRegular() {
		return root, true
	}

	var first, exact string
	baseDepth := depth(mount)

	walkErr := filepath.WalkDir(mount, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != mount {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != mount && depth(path)-baseDepth > l.cfg.MaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if strings.EqualFold(name, l.cfg.KeyFileName) {
			exact = path
			return fs.SkipAll
		}
		if first == "" && strings.EqualFold(filepath.Ext(name), keyExtension) &&
			!strings.EqualFold(name, l.cfg.PublicKeyFileName) {
			first = path
		}
		return nil
	})
	if walkErr != nil && walkErr != fs.SkipAll {
		logger.Logger.Debug("Token scan stopped early", "mount", mount, "error", walkErr)
	}

	if exact != "" {
		return exact, true
	}
	return first, false
}

func (l *Locator) setStatus(state State, mount string) {
	l.statusMu.Lock()
	prev := l.status
	l.status = Status{State: state, MountPath: mount, CheckedAt: l.now()}
	changed := prev.State != state || prev.MountPath != mount
	next := l.status
	subs := make([]func(Status), len(l.subscribers))
	copy(subs, l.subscribers)
	l.statusMu.Unlock()

	if !changed {
		return
	}
	logger.Logger.Info("Token status changed", "state", state.String(), "mount", mount)
	for _, fn := range subs {
		fn(next)
	}
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}
