// Copyright 2026 dotandev
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionComparison(t *testing.T) {
	tests := []struct {
		name        string
		current     string
		latest      string
		needsUpdate bool
		expectError bool
	}{
		{name: "older version needs update", current: "v1.0.0", latest: "v1.1.0", needsUpdate: true},
		{name: "much older version needs update", current: "v1.2.3", latest: "v2.0.0", needsUpdate: true},
		{name: "prerelease to stable needs update", current: "v1.0.0-alpha", latest: "v1.0.0", needsUpdate: true},
		{name: "same version no update", current: "v1.0.0", latest: "v1.0.0"},
		{name: "newer version no update", current: "v2.0.0", latest: "v1.0.0"},
		{name: "dev version no update", current: "dev", latest: "v1.0.0"},
		{name: "empty version no update", current: "", latest: "v1.0.0"},
		{name: "versions without v prefix", current: "1.0.0", latest: "1.1.0", needsUpdate: true},
		{name: "garbage tag", current: "1.0.0", latest: "nightly", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			needsUpdate, err := compareVersions(tt.current, tt.latest)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.needsUpdate, needsUpdate)
		})
	}
}

func newReleaseServer(t *testing.T, tag string, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "padesign-cli", r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(GitHubRelease{TagName: tag})
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestChecker(t *testing.T, current, url string) *Checker {
	t.Helper()
	c := NewChecker(current, url)
	c.cacheDir = t.TempDir()
	return c
}

func TestCheckFetchesAndCaches(t *testing.T) {
	srv, hits := newReleaseServer(t, "v1.3.0", http.StatusOK)
	c := newTestChecker(t, "1.2.0", srv.URL)

	res, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "v1.3.0", res.Latest)
	assert.True(t, res.Newer)
	assert.False(t, res.FromCache)

	res, err = c.Check(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	_, err = c.Check(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestCheckRefetchesStaleCache(t *testing.T) {
	srv, hits := newReleaseServer(t, "v1.0.0", http.StatusOK)
	c := newTestChecker(t, "1.0.0", srv.URL)

	stale, err := json.Marshal(CacheData{LastCheck: time.Now().Add(-25 * time.Hour), LatestVersion: "v0.9.0"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(c.cacheDir, cacheFileName), stale, 0o644))

	res, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", res.Latest)
	assert.False(t, res.Newer)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestCheckIgnoresCorruptCache(t *testing.T) {
	srv, _ := newReleaseServer(t, "v2.0.0", http.StatusOK)
	c := newTestChecker(t, "1.0.0", srv.URL)
	require.NoError(t, os.WriteFile(filepath.Join(c.cacheDir, cacheFileName), []byte("{"), 0o644))

	res, err := c.Check(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.True(t, res.Newer)
}

func TestCheckErrors(t *testing.T) {
	srv, _ := newReleaseServer(t, "", http.StatusForbidden)
	_, err := newTestChecker(t, "1.0.0", srv.URL).Check(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	empty, _ := newReleaseServer(t, "", http.StatusOK)
	_, err = newTestChecker(t, "1.0.0", empty.URL).Check(context.Background(), false)
	require.Error(t, err)

	_, err = newTestChecker(t, "1.0.0", "http://localhost:0/releases").Check(context.Background(), false)
	require.Error(t, err)
}

func TestGetCacheDir(t *testing.T) {
	assert.Equal(t, "padesign", filepath.Base(getCacheDir()))
}
