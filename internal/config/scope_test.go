// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildScopeCreatesDownloadRoot(t *testing.T) {
	cfg := validConfig(t)
	cfg.DownloadRoot = filepath.Join(cfg.DownloadRoot, "media")

	scope, err := BuildScope(cfg)
	require.NoError(t, err)

	info, err := os.Stat(cfg.DownloadRoot)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Len(t, scope.Roots(), 2)

	_, err = scope.Contain(filepath.Join(cfg.DownloadRoot, "video", "a.mp4"))
	assert.NoError(t, err)
}

func TestBuildScopeMissingTempRoot(t *testing.T) {
	cfg := validConfig(t)
	cfg.TempRoot = filepath.Join(cfg.TempRoot, "absent")

	_, err := BuildScope(cfg)
	assert.Error(t, err)
}

func TestAllowListOverrides(t *testing.T) {
	cfg := validConfig(t)
	cfg.AllowedDomains = map[string][]string{"tiktok": {"tiktokcdn-eu.com"}}

	table, err := AllowList(cfg)
	require.NoError(t, err)

	pol, ok := table.Lookup(allowlist.TikTok)
	require.True(t, ok)
	assert.Equal(t, []string{"tiktokcdn-eu.com"}, pol.Suffixes)

	pol, ok = table.Lookup(allowlist.Douyin)
	require.True(t, ok)
	assert.Contains(t, pol.Suffixes, "douyin.com")
	assert.True(t, table.Strict())
}

func TestAllowListUnknownPlatform(t *testing.T) {
	cfg := validConfig(t)
	cfg.AllowedDomains = map[string][]string{"vimeo": {"vimeo.com"}}

	_, err := AllowList(cfg)
	assert.ErrorIs(t, err, allowlist.ErrUnknownPlatform)
}
