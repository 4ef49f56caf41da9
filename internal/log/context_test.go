// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
	}{
		{name: "nil context", ctx: nil, id: "req-1"},
		{name: "background context", ctx: context.Background(), id: "req-2"},
		{name: "empty id", ctx: context.Background(), id: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.id)
			assert.Equal(t, tt.id, RequestIDFromContext(ctx))

			ctx = ContextWithJobID(tt.ctx, tt.id+"-job")
			assert.Equal(t, tt.id+"-job", JobIDFromContext(ctx))
		})
	}
}

func TestIDFromContextWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDKey, 123)
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, JobIDFromContext(nil)) //nolint:staticcheck // nil context is part of the contract
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	ctx = ContextWithJobID(ctx, "job-456")
	enriched := WithContext(ctx, l)
	enriched.Info().Msg("hello")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "req-123", entry[FieldRequestID])
	assert.Equal(t, "job-456", entry[FieldJobID])
}

func TestWithContextWithoutFieldsKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Level(zerolog.WarnLevel)

	got := WithContext(context.Background(), l)
	assert.Equal(t, zerolog.WarnLevel, got.GetLevel())

	got.Warn().Msg("plain")
	entry := decodeLine(t, &buf)
	assert.NotContains(t, entry, FieldRequestID)
	assert.NotContains(t, entry, FieldJobID)
}

func TestWithTraceContext(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		l := WithTraceContext(context.Background())
		assert.LessOrEqual(t, l.GetLevel(), zerolog.PanicLevel)
	})

	t.Run("noop span", func(t *testing.T) {
		ctx, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "noop")
		defer span.End()
		l := WithTraceContext(ctx)
		assert.LessOrEqual(t, l.GetLevel(), zerolog.PanicLevel)
	})

	t.Run("valid span", func(t *testing.T) {
		var buf bytes.Buffer
		Configure(Config{Output: &buf, Level: "debug"})
		t.Cleanup(func() { Configure(Config{}) })

		traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		require.NoError(t, err)
		spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
		require.NoError(t, err)
		ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}))

		l := WithTraceContext(ctx)
		l.Info().Msg("traced")

		entry := decodeLine(t, &buf)
		assert.Equal(t, traceID.String(), entry[FieldTraceID])
		assert.Equal(t, spanID.String(), entry[FieldSpanID])
	})
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())

	l = FromContext(nil) //nolint:staticcheck // nil context is part of the contract
	require.NotNil(t, l)
}

func TestFromContextPrefersAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	attached := zerolog.New(&buf).With().Str("origin", "ctx").Logger()
	ctx := attached.WithContext(context.Background())

	FromContext(ctx).Info().Msg("from ctx")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "ctx", entry["origin"])
}
