// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPlatform  = "platform"
	FieldType      = "type"
	FieldMediaID   = "media_id"
	FieldStage     = "stage"
	FieldKind      = "failure_kind"
	FieldStatus    = "status"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath     = "path"
	FieldURL      = "url"
	FieldFinalURL = "final_url"
	FieldHop      = "hop"

	// Transfer fields
	FieldBytes     = "bytes"
	FieldElapsedMS = "elapsed_ms"

	// Process fields
	FieldPID      = "pid"
	FieldExitCode = "exit_code"
)
