// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	"github.com/ManuGH/mediagate/internal/platform/httpx"
	pnet "github.com/ManuGH/mediagate/internal/platform/net"
)

// Status is the terminal state of a fetch.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// FailureKind classifies why an operation did not succeed.
type FailureKind string

const (
	KindNone           FailureKind = ""
	KindValidation     FailureKind = "validation"
	KindDNSPolicy      FailureKind = "dns_policy"
	KindRedirectPolicy FailureKind = "redirect_policy"
	KindPathSafety     FailureKind = "path_safety"
	KindNetwork        FailureKind = "network"
	KindCancelled      FailureKind = "cancelled"
	KindMerge          FailureKind = "merge"
)

// Retryable reports whether the caller may reasonably re-invoke the whole
// operation. Policy violations never become valid by retrying.
func (k FailureKind) Retryable() bool {
	return k == KindNetwork || k == KindMerge
}

// ClientFault reports whether the failure stems from caller-supplied input.
func (k FailureKind) ClientFault() bool {
	switch k {
	case KindValidation, KindDNSPolicy, KindRedirectPolicy:
		return true
	}
	return false
}

// Kinded is implemented by errors that carry their own failure kind.
type Kinded interface {
	FailureKind() FailureKind
}

var (
	ErrStatus   = errors.New("unexpected http status")
	ErrTooLarge = errors.New("response exceeds size limit")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string      { return fmt.Sprintf("%v: %d", ErrStatus, e.Code) }
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Classify maps any pipeline error onto the failure taxonomy.
func Classify(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}

	var redirect *pnet.RedirectError
	if errors.As(err, &redirect) || errors.Is(err, pnet.ErrTooManyRedirects) {
		return KindRedirectPolicy
	}
	var reject *pnet.RejectError
	if errors.As(err, &reject) {
		if reject.DNSPolicy() {
			return KindDNSPolicy
		}
		return KindValidation
	}
	if errors.Is(err, httpx.ErrDialBlocked) {
		return KindDNSPolicy
	}
	if errors.Is(err, allowlist.ErrUnknownPlatform) {
		return KindValidation
	}

	switch {
	case errors.Is(err, fs.ErrOutsideScope),
		errors.Is(err, fs.ErrRootEquality),
		errors.Is(err, fs.ErrInvalidPath),
		errors.Is(err, fs.ErrNotRegular),
		errors.Is(err, fs.ErrDestinationExists),
		errors.Is(err, fs.ErrNoRoots):
		return KindPathSafety
	}
	return KindNetwork
}

// Outcome is the immutable result of one fetch.
type Outcome struct {
	Status       Status
	BytesWritten int64
	Elapsed      time.Duration
	Kind         FailureKind
	Err          error

	// Path is the canonical destination; set on success only.
	Path string
	// FinalURL is the sanitized URL whose bytes were written.
	FinalURL    string
	Hops        int
	ContentType string
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// Failure builds the outcome for err, which must be non-nil.
func Failure(err error, start time.Time) Outcome {
	kind := Classify(err)
	status := StatusFailed
	if kind == KindCancelled {
		status = StatusCancelled
	}
	return Outcome{
		Status:  status,
		Kind:    kind,
		Err:     err,
		Elapsed: time.Since(start),
	}
}
