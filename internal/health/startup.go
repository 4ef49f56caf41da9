// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/mediagate/internal/config"
	"github.com/ManuGH/mediagate/internal/log"
)

// Checkers returns the readiness checkers for cfg.
func Checkers(cfg config.AppConfig) []Checker {
	return []Checker{
		NewDirChecker("download_root", cfg.DownloadRoot),
		NewDirChecker("temp_root", cfg.TempRoot),
		NewBinaryChecker("ffmpeg", cfg.Merge.FFmpegBin),
	}
}

// PerformStartupChecks fails when a required component is unhealthy and
// logs a warning for degraded ones. The download root must already exist.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	for _, c := range Checkers(cfg) {
		res := c.Check(ctx)
		switch res.Status {
		case StatusUnhealthy:
			return fmt.Errorf("%s check failed: %s", c.Name(), res.Error)
		case StatusDegraded:
			logger.Warn().
				Str(log.FieldEvent, "startup.degraded").
				Str("check", c.Name()).
				Str("error", res.Error).
				Msg("component degraded; split-stream merges will fail")
		default:
			logger.Debug().Str("check", c.Name()).Str("detail", res.Message).Msg("startup check passed")
		}
	}
	return nil
}
