// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/platform/fs"
)

// BuildScope creates the download root if needed and returns the path scope
// spanning the download and temp roots.
func BuildScope(cfg AppConfig) (*fs.PathScope, error) {
	if err := os.MkdirAll(cfg.DownloadRoot, 0o750); err != nil {
		return nil, fmt.Errorf("create download root: %w", err)
	}
	scope, err := fs.NewPathScope(cfg.DownloadRoot, cfg.TempRoot)
	if err != nil {
		return nil, fmt.Errorf("build path scope: %w", err)
	}
	return scope, nil
}

// AllowList returns the effective per-platform allow-list.
func AllowList(cfg AppConfig) (*allowlist.Table, error) {
	overrides := make(map[allowlist.Platform][]string, len(cfg.AllowedDomains))
	for name, suffixes := range cfg.AllowedDomains {
		p, err := allowlist.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		overrides[p] = suffixes
	}
	return allowlist.WithOverrides(overrides, cfg.Security.StrictValidation)
}
