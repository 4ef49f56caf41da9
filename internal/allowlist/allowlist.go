// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package allowlist holds the per-platform outbound host policy: which host
// suffixes may be dereferenced, over which scheme and port, and whether DNS
// answers must be public addresses.
package allowlist

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// Platform identifies an upstream media platform.
type Platform string

const (
	Douyin   Platform = "douyin"
	TikTok   Platform = "tiktok"
	Bilibili Platform = "bilibili"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{Douyin, TikTok, Bilibili}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string { return string(p) }

// ParsePlatform converts s to a Platform, case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
	return p, nil
}

const (
	// RequiredScheme is the only scheme any platform accepts.
	RequiredScheme = "https"
	// RequiredPort is the only port any platform accepts.
	RequiredPort = 443
)

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrInvalidSuffix   = errors.New("invalid allow-list suffix")
)

// DefaultSuffixes is the built-in host suffix table.
var DefaultSuffixes = map[Platform][]string{
	Douyin:   {"douyin.com", "amemv.com", "snssdk.com"},
	TikTok:   {"tiktok.com"},
	Bilibili: {"bilibili.com", "bilivideo.com", "hdslb.com"},
}

// Policy is the accepted outbound shape for one platform.
type Policy struct {
	Suffixes []string
	Scheme   string
	Port     int
	Strict   bool
}

// Table maps platforms to policies. It is immutable once built; Lookup hands
// out copies so callers cannot mutate shared suffix slices.
type Table struct {
	policies map[Platform]Policy
}

// NewTable builds a table from suffix lists. Suffixes are normalized to their
// lower-case ASCII (IDNA) form with leading and trailing dots removed.
func NewTable(entries map[Platform][]string, strict bool) (*Table, error) {
	policies := make(map[Platform]Policy, len(entries))
	for platform, raw := range entries {
		if !platform.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
		}
		suffixes := make([]string, 0, len(raw))
		seen := make(map[string]struct{}, len(raw))
		for _, s := range raw {
			norm, err := NormalizeSuffix(s)
			if err != nil {
				return nil, fmt.Errorf("platform %s: %w", platform, err)
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			suffixes = append(suffixes, norm)
		}
		sort.Strings(suffixes)
		policies[platform] = Policy{
			Suffixes: suffixes,
			Scheme:   RequiredScheme,
			Port:     RequiredPort,
			Strict:   strict,
		}
	}
	return &Table{policies: policies}, nil
}

// Default returns the built-in table.
func Default(strict bool) *Table {
	t, err := NewTable(DefaultSuffixes, strict)
	if err != nil {
		panic(fmt.Sprintf("allowlist: default table invalid: %v", err))
	}
	return t
}

// WithOverrides returns a new table in which the given platforms use the
// supplied suffix lists instead of the built-in ones.
func WithOverrides(overrides map[Platform][]string, strict bool) (*Table, error) {
	merged := make(map[Platform][]string, len(DefaultSuffixes))
	for p, s := range DefaultSuffixes {
		merged[p] = s
	}
	for p, s := range overrides {
		merged[p] = s
	}
	return NewTable(merged, strict)
}

// Lookup returns the policy for platform p.
func (t *Table) Lookup(p Platform) (Policy, bool) {
	if t == nil {
		return Policy{}, false
	}
	pol, ok := t.policies[p]
	if !ok {
		return Policy{}, false
	}
	pol.Suffixes = append([]string(nil), pol.Suffixes...)
	return pol, true
}

// Strict reports whether the table enforces public DNS answers.
func (t *Table) Strict() bool {
	for _, p := range t.policies {
		return p.Strict
	}
	return true
}

// NormalizeSuffix canonicalizes a configured suffix.
func NormalizeSuffix(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, ".")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSuffix)
	}
	if strings.ContainsAny(s, "/:@ ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSuffix, raw)
	}
	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidSuffix, raw, err)
	}
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("%w: %q is a bare label", ErrInvalidSuffix, raw)
	}
	return ascii, nil
}
