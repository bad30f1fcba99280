// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

const (
	// CheckInterval is how long a fetched release stays cached.
	CheckInterval = 24 * time.Hour
	// RequestTimeout bounds the release feed request.
	RequestTimeout = 5 * time.Second

	cacheFileName = "last_update_check"
)

// Checker compares the running version against the latest published
// release. It only runs when the user asks for it.
type Checker struct {
	currentVersion string
	releaseURL     string
	cacheDir       string
	client         *http.Client
	now            func() time.Time
}

// GitHubRelease is the part of the releases API response we read.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

// CacheData stores the last check timestamp and latest version
type CacheData struct {
	LastCheck     time.Time `json:"last_check"`
	LatestVersion string    `json:"latest_version"`
}

// Result is the outcome of a check.
type Result struct {
	Current   string
	Latest    string
	Newer     bool
	FromCache bool
}

func NewChecker(currentVersion, releaseURL string) *Checker {
	return &Checker{
		currentVersion: currentVersion,
		releaseURL:     releaseURL,
		cacheDir:       getCacheDir(),
		client:         &http.Client{Timeout: RequestTimeout},
		now:            time.Now,
	}
}

// Check returns the latest release, reusing a cached answer younger than
// CheckInterval unless force is set.
func (c *Checker) Check(ctx context.Context, force bool) (*Result, error) {
	res := &Result{Current: c.currentVersion}

	if cached, ok := c.readCache(); ok && !force {
		res.Latest = cached
		res.FromCache = true
	} else {
		latest, err := c.fetchLatestVersion(ctx)
		if err != nil {
			return nil, err
		}
		res.Latest = latest
		if err := c.updateCache(latest); err != nil {
			return nil, err
		}
	}

	newer, err := compareVersions(c.currentVersion, res.Latest)
	if err != nil {
		return nil, err
	}
	res.Newer = newer
	return res, nil
}

func (c *Checker) readCache() (string, bool) {
	data, err := os.ReadFile(filepath.Join(c.cacheDir, cacheFileName))
	if err != nil {
		return "", false
	}
	var cache CacheData
	if err := json.Unmarshal(data, &cache); err != nil {
		return "", false
	}
	if c.now().Sub(cache.LastCheck) >= CheckInterval || cache.LatestVersion == "" {
		return "", false
	}
	return cache.LatestVersion, true
}

func (c *Checker) fetchLatestVersion(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.releaseURL, nil)
	if err != nil {
		return "", err
	}
	// GitHub rejects requests without a User-Agent.
	req.Header.Set("User-Agent", "padesign-cli")
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("release check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release check failed: unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var release GitHubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return "", fmt.Errorf("release check failed: %w", err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("release check failed: no tag in response")
	}
	return release.TagName, nil
}

// compareVersions reports whether latest is newer than current. Development
// builds never report an update.
func compareVersions(current, latest string) (bool, error) {
	current = strings.TrimPrefix(current, "v")
	latest = strings.TrimPrefix(latest, "v")

	if current == "dev" || current == "" {
		return false, nil
	}

	currentVer, err := version.NewVersion(current)
	if err != nil {
		return false, err
	}
	latestVer, err := version.NewVersion(latest)
	if err != nil {
		return false, err
	}
	return latestVer.GreaterThan(currentVer), nil
}

func (c *Checker) updateCache(latestVersion string) error {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(CacheData{
		LastCheck:     c.now(),
		LatestVersion: latestVersion,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.cacheDir, cacheFileName), data, 0o644)
}

func getCacheDir() string {
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "padesign")
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".cache", "padesign")
	}
	return filepath.Join(os.TempDir(), "padesign")
}
