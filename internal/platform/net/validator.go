// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package net decides whether an untrusted URL may be dereferenced.
//
// Validation is a fixed, fail-closed sequence of independent checks:
// scheme, port, userinfo, host canonicalization, allow-list suffix and DNS
// classification. Each check is exported as a pure function so it can be
// exercised in isolation; only the DNS stage touches the Resolver boundary.
package net

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/metrics"
	"golang.org/x/net/idna"
)

// Validator applies an allow-list table to URLs.
type Validator struct {
	table    *allowlist.Table
	resolver Resolver
}

// NewValidator returns a validator backed by table. A nil resolver selects the
// system resolver.
func NewValidator(table *allowlist.Table, resolver Resolver) *Validator {
	if resolver == nil {
		resolver = DefaultResolver
	}
	return &Validator{table: table, resolver: resolver}
}

// Validate accepts or rejects raw for platform. On success it returns a URL
// rebuilt from the validated components (scheme, ASCII host, path, query);
// callers must dereference that value and never the original string.
func (v *Validator) Validate(ctx context.Context, platform allowlist.Platform, raw string) (*url.URL, error) {
	canon, err := v.validate(ctx, platform, raw)
	if err != nil {
		if re, ok := err.(*RejectError); ok {
			metrics.RecordValidationReject(string(re.Stage))
		}
		return nil, err
	}
	return canon, nil
}

func (v *Validator) validate(ctx context.Context, platform allowlist.Platform, raw string) (*url.URL, error) {
	policy, ok := v.table.Lookup(platform)
	if !ok {
		return nil, reject(StageParse, raw, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform))
	}

	u, err := ParseURL(raw)
	if err != nil {
		return nil, reject(StageParse, raw, err)
	}
	if err := CheckScheme(u, policy); err != nil {
		return nil, reject(StageScheme, raw, err)
	}
	if err := CheckPort(u, policy); err != nil {
		return nil, reject(StagePort, raw, err)
	}
	if err := CheckUserinfo(u); err != nil {
		return nil, reject(StageUserinfo, raw, err)
	}
	host, err := CanonicalHost(u.Hostname())
	if err != nil {
		return nil, reject(StageHost, raw, err)
	}
	if !MatchSuffix(host, policy.Suffixes) {
		return nil, reject(StageSuffix, raw, fmt.Errorf("%w: %s", ErrHostNotAllowed, host))
	}
	if policy.Strict {
		if err := v.checkDNS(ctx, host); err != nil {
			return nil, reject(StageDNS, raw, err)
		}
	}
	return Canonical(u, host), nil
}

func (v *Validator) checkDNS(ctx context.Context, host string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	addrs, err := v.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}
	return CheckAddrs(addrs)
}

// ParseURL parses raw and rejects shapes that can never be fetched.
func ParseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Opaque != "" {
		return nil, fmt.Errorf("%w: opaque url", ErrMalformedURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrMalformedURL)
	}
	return u, nil
}

// CheckScheme requires the policy scheme exactly.
func CheckScheme(u *url.URL, policy allowlist.Policy) error {
	if u.Scheme != policy.Scheme {
		return fmt.Errorf("%w: %q", ErrSchemeNotAllowed, u.Scheme)
	}
	return nil
}

// CheckPort accepts an absent port or the policy port spelled canonically.
// Alternate spellings such as "0443" are refused.
func CheckPort(u *url.URL, policy allowlist.Policy) error {
	port := u.Port()
	if port == "" {
		if strings.HasSuffix(u.Host, ":") {
			return fmt.Errorf("%w: empty port", ErrPortNotAllowed)
		}
		return nil
	}
	if port != fmt.Sprint(policy.Port) {
		return fmt.Errorf("%w: %s", ErrPortNotAllowed, port)
	}
	return nil
}

// CheckUserinfo rejects any embedded credentials, including an empty "@".
func CheckUserinfo(u *url.URL) error {
	if u.User != nil {
		return ErrUserinfo
	}
	return nil
}

// CanonicalHost lower-cases host, strips trailing dots and converts it to its
// ASCII (IDNA) form. IP literals are refused: an address can never satisfy a
// DNS suffix allow-list.
func CanonicalHost(raw string) (string, error) {
	host := strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), ".")
	if host == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	if strings.ContainsAny(host, "%@/\\ ") {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, raw)
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return "", fmt.Errorf("%w: ip literal %s", ErrInvalidHost, host)
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidHost, raw, err)
	}
	ascii = strings.ToLower(ascii)
	if looksNumeric(ascii) {
		return "", fmt.Errorf("%w: numeric host %s", ErrInvalidHost, ascii)
	}
	return ascii, nil
}

// looksNumeric catches legacy IPv4 spellings (hex, octal, short forms) that
// netip rejects but some resolvers still accept.
func looksNumeric(host string) bool {
	labels := strings.Split(host, ".")
	last := labels[len(labels)-1]
	if last == "" {
		return false
	}
	if strings.HasPrefix(last, "0x") {
		return true
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MatchSuffix reports whether host equals a suffix or ends in "."+suffix.
// The label boundary keeps "evil-bilibili.com" from matching "bilibili.com".
func MatchSuffix(host string, suffixes []string) bool {
	for _, s := range suffixes {
		if s == "" {
			continue
		}
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

// Canonical rebuilds u from validated parts. The port is dropped because
// only the default port passes CheckPort; userinfo and fragment never survive.
func Canonical(u *url.URL, host string) *url.URL {
	return &url.URL{
		Scheme:   u.Scheme,
		Host:     host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
}
