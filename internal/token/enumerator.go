// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dotandev/padesign/internal/logger"
	"github.com/shirou/gopsutil/v3/disk"
)

// MountEnumerator lists the mount points of removable storage devices.
type MountEnumerator interface {
	RemovableMounts(ctx context.Context) ([]string, error)
}

// StaticEnumerator reports a fixed set of mount points. It backs the
// token.mount_roots configuration and simulated device sets in tests.
type StaticEnumerator []string

func (s StaticEnumerator) RemovableMounts(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s))
	for _, m := range s {
		if m != "" {
			out = append(out, m)
		}
	}
	return out, nil
}

// SystemEnumerator asks the OS for mounted partitions and keeps those backed
// by a removable block device.
type SystemEnumerator struct {
	// Extra mount points that are always treated as removable.
	Extra []string

	sysBlockDir string
	partitions  func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
}

// NewSystemEnumerator returns an enumerator backed by gopsutil.
func NewSystemEnumerator(extra []string) *SystemEnumerator {
	return &SystemEnumerator{
		Extra:       extra,
		sysBlockDir: "/sys/class/block",
		partitions:  disk.PartitionsWithContext,
	}
}

func (e *SystemEnumerator) RemovableMounts(ctx context.Context) ([]string, error) {
	parts, err := e.partitions(ctx, false)
	if err != nil {
		return nil, err
	}

	var mounts []string
	for _, p := range parts {
		if p.Mountpoint == "" {
			continue
		}
		if e.isRemovable(p) {
			mounts = append(mounts, p.Mountpoint)
		}
	}

	for _, m := range e.Extra {
		if m == "" || slices.Contains(mounts, m) {
			continue
		}
		if _, err := os.Stat(m); err == nil {
			mounts = append(mounts, m)
		}
	}

	logger.Logger.Debug("Enumerated removable mounts", "count", len(mounts))
	return mounts, nil
}

func (e *SystemEnumerator) isRemovable(p disk.PartitionStat) bool {
	for _, opt := range p.Opts {
		if opt == "removable" {
			return true
		}
	}
	return e.sysfsRemovable(p.Device)
}

// sysfsRemovable resolves /dev/sdX1 to its sysfs node. Partitions carry no
// removable flag of their own, so the parent disk is consulted too. A disk
// attached over USB counts even when it does not set the flag.
func (e *SystemEnumerator) sysfsRemovable(device string) bool {
	if !strings.HasPrefix(device, "/dev/") {
		return false
	}
	name := filepath.Base(device)
	node := filepath.Join(e.sysBlockDir, name)

	if readFlag(filepath.Join(node, "removable")) {
		return true
	}

	resolved, err := filepath.EvalSymlinks(node)
	if err != nil {
		return false
	}
	if readFlag(filepath.Join(filepath.Dir(resolved), "removable")) {
		return true
	}
	return strings.Contains(filepath.ToSlash(resolved), "/usb")
}

func readFlag(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(raw)) == "1"
}
