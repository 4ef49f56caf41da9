// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/metrics"
)

// RedirectAuditor re-applies a Validator to every hop of a redirect chain.
type RedirectAuditor struct {
	v *Validator
}

// NewRedirectAuditor returns an auditor backed by v.
func NewRedirectAuditor(v *Validator) *RedirectAuditor {
	return &RedirectAuditor{v: v}
}

// Audit validates every element of chain, in order, including the final
// response URL. A chain is trusted only if all hops pass: an accepted first
// hop says nothing about where later hops lead.
func (a *RedirectAuditor) Audit(ctx context.Context, platform allowlist.Platform, chain []*url.URL) error {
	if len(chain) == 0 {
		return &RedirectError{Index: 0, Hop: "", Err: fmt.Errorf("%w: empty chain", ErrMalformedURL)}
	}
	for i, hop := range chain {
		if hop == nil {
			return &RedirectError{Index: i, Err: fmt.Errorf("%w: nil hop", ErrMalformedURL)}
		}
		if _, err := a.v.validate(ctx, platform, hop.String()); err != nil {
			metrics.RecordValidationReject(string(StageRedirect))
			return &RedirectError{Index: i, Hop: SanitizeURL(hop.String()), Err: err}
		}
	}
	return nil
}

// CheckRedirect returns an http.Client CheckRedirect hook. Each hop is
// validated before it is followed and the request is pointed at the
// canonical form of the hop, so the bytes that arrive always come from a
// validated URL. At most maxHops redirects are followed; a negative maxHops
// refuses every redirect. record, if non-nil, observes every accepted hop.
func (a *RedirectAuditor) CheckRedirect(ctx context.Context, platform allowlist.Platform, maxHops int, record func(*url.URL)) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max(maxHops, 0) {
			return &RedirectError{Index: len(via), Hop: SanitizeURL(req.URL.String()), Err: ErrTooManyRedirects}
		}
		canon, err := a.v.validate(ctx, platform, req.URL.String())
		if err != nil {
			metrics.RecordValidationReject(string(StageRedirect))
			return &RedirectError{Index: len(via), Hop: SanitizeURL(req.URL.String()), Err: err}
		}
		req.URL = canon
		req.Host = ""
		if record != nil {
			record(canon)
		}
		return nil
	}
}
