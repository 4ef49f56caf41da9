// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ManuGH/mediagate/internal/validate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) AppConfig {
	t.Helper()
	cfg := Defaults()
	cfg.DownloadRoot = t.TempDir()
	cfg.TempRoot = t.TempDir()
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, Validate(validConfig(t)))
}

func TestValidateFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"relative download root", func(c *AppConfig) { c.DownloadRoot = "downloads" }, "downloadRoot"},
		{"traversal temp root", func(c *AppConfig) { c.TempRoot = "/tmp/../etc" }, "tempRoot"},
		{"log level", func(c *AppConfig) { c.LogLevel = "verbose" }, "logLevel"},
		{"unknown environment", func(c *AppConfig) { c.Environment = "prod" }, "environment"},
		{"empty environment", func(c *AppConfig) { c.Environment = " " }, "environment"},
		{"zero concurrency", func(c *AppConfig) { c.Merge.Concurrency = 0 }, "merge.concurrency"},
		{"empty ffmpeg", func(c *AppConfig) { c.Merge.FFmpegBin = " " }, "merge.ffmpegBin"},
		{"tiny stderr budget", func(c *AppConfig) { c.Merge.StderrLimitBytes = 10 }, "merge.stderrLimitBytes"},
		{"zero kill grace", func(c *AppConfig) { c.Merge.KillGrace = 0 }, "merge.killGrace"},
		{"chunk too small", func(c *AppConfig) { c.Fetch.ChunkSize = 512 }, "fetch.chunkSize"},
		{"chunk too large", func(c *AppConfig) { c.Fetch.ChunkSize = 8 << 20 }, "fetch.chunkSize"},
		{"redirects", func(c *AppConfig) { c.Fetch.MaxRedirects = 0 }, "fetch.maxRedirects"},
		{"negative max bytes", func(c *AppConfig) { c.Fetch.MaxBytes = -1 }, "fetch.maxBytes"},
		{"negative rate", func(c *AppConfig) { c.Fetch.RequestsPerSecond = -2 }, "fetch.requestsPerSecond"},
		{"negative timeout", func(c *AppConfig) { c.Fetch.Timeout = -1 }, "fetch.timeout"},
		{"exporter", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.ExporterType = "zipkin"
		}, "telemetry.exporterType"},
		{"sampling", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 1.5
		}, "telemetry.samplingRate"},
		{"unknown platform", func(c *AppConfig) {
			c.AllowedDomains = map[string][]string{"youtube": {"youtube.com"}}
		}, "allowedDomains.youtube"},
		{"bare label suffix", func(c *AppConfig) {
			c.AllowedDomains = map[string][]string{"douyin": {"localhost"}}
		}, "allowedDomains.douyin"},
		{"empty suffix list", func(c *AppConfig) {
			c.AllowedDomains = map[string][]string{"tiktok": {}}
		}, "allowedDomains.tiktok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var verr validate.ValidationError
			require.ErrorAs(t, err, &verr)
			var fields []string
			for _, e := range verr.Errors() {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateIgnoresTelemetryWhenDisabled(t *testing.T) {
	cfg := validConfig(t)
	cfg.Telemetry.ExporterType = "zipkin"
	assert.NoError(t, Validate(cfg))
}

func TestValidateAcceptsMissingDownloadRoot(t *testing.T) {
	cfg := validConfig(t)
	cfg.DownloadRoot = filepath.Join(cfg.DownloadRoot, "not-yet")
	assert.NoError(t, Validate(cfg))
}

func TestRelaxedValidationInProduction(t *testing.T) {
	cfg := validConfig(t)
	cfg.Environment = EnvironmentProduction
	cfg.Security.StrictValidation = false

	err := Validate(cfg)
	require.ErrorIs(t, err, ErrRelaxedInProduction)

	cfg.Security.AllowRelaxedInProduction = true
	assert.NoError(t, Validate(cfg))

	cfg.Security.AllowRelaxedInProduction = false
	cfg.Environment = "staging"
	assert.NoError(t, Validate(cfg))

	for _, env := range []string{"Production", "PRODUCTION", " production", "production\n"} {
		cfg.Environment = env
		assert.ErrorIs(t, Validate(cfg), ErrRelaxedInProduction, "environment %q", env)
	}

	cfg.Environment = "prod"
	err = Validate(cfg)
	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Errors(), 1)
	assert.Equal(t, "environment", ve.Errors()[0].Field)
}

func TestLogSecurityPosture(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	cfg := validConfig(t)
	assert.False(t, LogSecurityPosture(logger, cfg))
	assert.Empty(t, buf.String())

	cfg.Security.StrictValidation = false
	assert.True(t, LogSecurityPosture(logger, cfg))
	assert.Contains(t, buf.String(), `"event":"security.relaxed_validation"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
