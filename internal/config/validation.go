// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/validate"
	"github.com/rs/zerolog"
)

// Bounds enforced by Validate.
const (
	MinChunkSize       = 4 << 10
	MaxChunkSize       = 1 << 20
	MaxMergeConcurrent = 64
	MinStderrLimit     = 1 << 10
	MaxStderrLimit     = 16 << 20
	MaxRedirectLimit   = 30
)

// Validate checks cfg. All field errors are reported together.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.AbsoluteDir("downloadRoot", cfg.DownloadRoot)
	v.AbsoluteDir("tempRoot", cfg.TempRoot)
	v.OneOf("logLevel", cfg.LogLevel, validate.LogLevels)
	v.OneOf("environment", normalizeEnvironment(cfg.Environment), Environments)

	v.Range("merge.concurrency", cfg.Merge.Concurrency, 1, MaxMergeConcurrent)
	v.NotEmpty("merge.ffmpegBin", cfg.Merge.FFmpegBin)
	v.Range("merge.stderrLimitBytes", cfg.Merge.StderrLimitBytes, MinStderrLimit, MaxStderrLimit)
	if cfg.Merge.KillGrace <= 0 {
		v.AddError("merge.killGrace", "must be positive", cfg.Merge.KillGrace)
	}

	v.Range("fetch.chunkSize", cfg.Fetch.ChunkSize, MinChunkSize, MaxChunkSize)
	v.Range("fetch.maxRedirects", cfg.Fetch.MaxRedirects, 1, MaxRedirectLimit)
	v.NonNegative("fetch.maxBytes", cfg.Fetch.MaxBytes)
	if cfg.Fetch.Timeout < 0 {
		v.AddError("fetch.timeout", "cannot be negative", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.ResponseHeaderTimeout < 0 {
		v.AddError("fetch.responseHeaderTimeout", "cannot be negative", cfg.Fetch.ResponseHeaderTimeout)
	}
	if cfg.Fetch.RequestsPerSecond < 0 {
		v.AddError("fetch.requestsPerSecond", "cannot be negative", cfg.Fetch.RequestsPerSecond)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporterType", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	for platform, suffixes := range cfg.AllowedDomains {
		field := "allowedDomains." + platform
		if _, err := allowlist.ParsePlatform(platform); err != nil {
			v.AddError(field, "unknown platform", platform)
			continue
		}
		if len(suffixes) == 0 {
			v.AddError(field, "suffix list cannot be empty", suffixes)
		}
		for _, s := range suffixes {
			v.Custom(field, s, func(value interface{}) error {
				_, err := allowlist.NormalizeSuffix(value.(string))
				return err
			})
		}
	}

	return errors.Join(checkRelaxed(cfg), v.Err())
}

// checkRelaxed refuses relaxed validation in production unless the operator
// opted in explicitly.
func checkRelaxed(cfg AppConfig) error {
	if cfg.Security.StrictValidation || normalizeEnvironment(cfg.Environment) != EnvironmentProduction {
		return nil
	}
	if cfg.Security.AllowRelaxedInProduction {
		return nil
	}
	return fmt.Errorf("%w: set security.allowRelaxedInProduction to override", ErrRelaxedInProduction)
}

// normalizeEnvironment folds case and surrounding whitespace.
func normalizeEnvironment(env string) string {
	return strings.ToLower(strings.TrimSpace(env))
}

// LogSecurityPosture emits the startup warning for relaxed validation.
// It reports whether the warning was logged.
func LogSecurityPosture(logger zerolog.Logger, cfg AppConfig) bool {
	if cfg.Security.StrictValidation {
		return false
	}
	logger.Warn().
		Str(log.FieldEvent, "security.relaxed_validation").
		Str("environment", cfg.Environment).
		Msg("strict URL validation is disabled: DNS and dial-time address checks are off, SSRF protection is weakened")
	return true
}
