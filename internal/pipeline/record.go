// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/fetch"
)

// MediaType is the kind of artifact a record describes.
type MediaType string

const (
	TypeVideo MediaType = "video"
	TypeImage MediaType = "image"
)

// Valid reports whether t is a known media type.
func (t MediaType) Valid() bool { return t == TypeVideo || t == TypeImage }

// URLs are the upstream locations resolved by the metadata layer.
type URLs struct {
	// Primary is the video URL. For split-stream platforms it is the
	// video-only elementary stream.
	Primary string
	// Alternate is the audio-only elementary stream of split-stream
	// platforms.
	Alternate string
	// Images lists image URLs in presentation order.
	Images []string
}

// Record is one parsed media item.
type Record struct {
	Platform allowlist.Platform
	Type     MediaType
	ID       string
	URLs     URLs
	Headers  map[string]string
	// Watermark selects the watermarked variant name. The caller already
	// picked matching URLs.
	Watermark bool
}

// ErrInvalidRecord is matched by every RecordError.
var ErrInvalidRecord = errors.New("invalid record")

// RecordError rejects caller input before any network or disk work.
type RecordError struct {
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidRecord, e.Field, e.Reason)
}

func (e *RecordError) Is(target error) bool { return target == ErrInvalidRecord }

// FailureKind implements fetch.Kinded.
func (e *RecordError) FailureKind() fetch.FailureKind { return fetch.KindValidation }

// splitStream reports whether the platform serves separate video and audio
// streams that must be multiplexed.
func splitStream(p allowlist.Platform) bool {
	return p == allowlist.Bilibili
}

// Check validates the record's shape. URLs themselves are validated later
// by the fetch engine.
func (r Record) Check() error {
	if !r.Platform.Valid() {
		return fmt.Errorf("%w: %q", allowlist.ErrUnknownPlatform, r.Platform)
	}
	if !r.Type.Valid() {
		return &RecordError{Field: "type", Reason: fmt.Sprintf("unknown media type %q", r.Type)}
	}
	if strings.TrimSpace(r.ID) == "" {
		return &RecordError{Field: "id", Reason: "empty"}
	}
	switch r.Type {
	case TypeVideo:
		if r.URLs.Primary == "" {
			return &RecordError{Field: "urls.primary", Reason: "empty"}
		}
		if splitStream(r.Platform) && r.URLs.Alternate == "" {
			return &RecordError{Field: "urls.alternate", Reason: "audio stream required"}
		}
	case TypeImage:
		if len(r.URLs.Images) == 0 {
			return &RecordError{Field: "urls.images", Reason: "empty"}
		}
	}
	return nil
}
