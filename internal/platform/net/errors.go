// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"errors"
	"fmt"
)

// Stage names one step of URL validation. Values are lowercase for stable
// metric labels.
type Stage string

const (
	StageParse    Stage = "parse"
	StageScheme   Stage = "scheme"
	StagePort     Stage = "port"
	StageUserinfo Stage = "userinfo"
	StageHost     Stage = "host"
	StageSuffix   Stage = "suffix"
	StageDNS      Stage = "dns"
	StageRedirect Stage = "redirect"
)

var (
	ErrUnknownPlatform  = errors.New("platform has no outbound policy")
	ErrMalformedURL     = errors.New("malformed url")
	ErrSchemeNotAllowed = errors.New("scheme not allowed")
	ErrPortNotAllowed   = errors.New("port not allowed")
	ErrUserinfo         = errors.New("userinfo not allowed")
	ErrInvalidHost      = errors.New("invalid host")
	ErrHostNotAllowed   = errors.New("host not in allow-list")
	ErrResolve          = errors.New("host did not resolve")
	ErrBlockedIP        = errors.New("blocked ip")
	ErrRedirectRejected = errors.New("redirect hop rejected")
	ErrTooManyRedirects = errors.New("too many redirects")
)

// RejectError reports which validation stage refused a URL. URL is already
// sanitized and safe to log.
type RejectError struct {
	Stage Stage
	URL   string
	Err   error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("url rejected at %s stage (%s): %v", e.Stage, e.URL, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

// DNSPolicy reports whether the rejection came from address resolution or
// address classification rather than from the URL text itself.
func (e *RejectError) DNSPolicy() bool { return e.Stage == StageDNS }

// RedirectError reports the first hop of a redirect chain that failed
// validation. Index 0 is the originally requested URL.
type RedirectError struct {
	Index int
	Hop   string
	Err   error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect hop %d (%s) rejected: %v", e.Index, e.Hop, e.Err)
}

func (e *RedirectError) Unwrap() error { return e.Err }

// Is makes every RedirectError match ErrRedirectRejected.
func (e *RedirectError) Is(target error) bool { return target == ErrRedirectRejected }

func reject(stage Stage, rawURL string, err error) error {
	return &RejectError{Stage: stage, URL: SanitizeURL(rawURL), Err: err}
}
