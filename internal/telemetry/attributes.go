// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. URLs are recorded sanitized only.
const (
	PlatformKey  = "media.platform"
	MediaTypeKey = "media.type"
	MediaIDKey   = "media.id"

	FetchURLKey      = "fetch.url"
	FetchFinalURLKey = "fetch.final_url"
	FetchBytesKey    = "fetch.bytes"
	FetchStatusKey   = "fetch.status"
	FetchHopsKey     = "fetch.redirect_hops"

	MergeJobIDKey    = "merge.job_id"
	MergeStateKey    = "merge.state"
	MergeExitCodeKey = "merge.exit_code"

	ArchiveEntriesKey = "archive.entries"

	FailureKindKey = "failure.kind"
)

// MediaAttributes describes the record being processed.
func MediaAttributes(platform, mediaType, id string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if platform != "" {
		attrs = append(attrs, attribute.String(PlatformKey, platform))
	}
	if mediaType != "" {
		attrs = append(attrs, attribute.String(MediaTypeKey, mediaType))
	}
	if id != "" {
		attrs = append(attrs, attribute.String(MediaIDKey, id))
	}
	return attrs
}

// FetchAttributes describes a completed transfer.
func FetchAttributes(finalURL, status string, bytes int64, hops int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FetchFinalURLKey, finalURL),
		attribute.String(FetchStatusKey, status),
		attribute.Int64(FetchBytesKey, bytes),
		attribute.Int(FetchHopsKey, hops),
	}
}

// MergeAttributes describes a merge job.
func MergeAttributes(jobID, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(MergeJobIDKey, jobID),
		attribute.String(MergeStateKey, state),
	}
}

// RecordFailure marks span as failed with a pipeline failure kind.
func RecordFailure(span trace.Span, kind string, err error) {
	span.SetAttributes(attribute.String(FailureKindKey, kind))
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, kind)
}
