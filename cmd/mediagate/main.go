// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command mediagate downloads media records described as JSON, merging
// split streams and packing image sets into archives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/mediagate/internal/config"
	"github.com/ManuGH/mediagate/internal/health"
	mglog "github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/pipeline"
	"github.com/ManuGH/mediagate/internal/telemetry"
	"github.com/ManuGH/mediagate/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "config" {
		os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
	}
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	flags := flag.NewFlagSet("mediagate", flag.ContinueOnError)
	showVersion := flags.Bool("version", false, "print version and exit")
	configPath := flags.String("config", "", "path to config file (YAML)")
	input := flags.String("input", "-", "JSON record file, or - for stdin")
	root := flags.String("root", "", "download directory override (must lie inside the download root)")
	usePrefix := flags.Bool("prefix", false, "prepend the configured file prefix to file names")
	parallel := flags.Int("parallel", 2, "records processed at once")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	mglog.Configure(mglog.Config{Level: "info", Output: os.Stderr, Service: "mediagate", Version: version.Version})
	logger := mglog.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewLoader(strings.TrimSpace(*configPath), version.Version).Load()
	if err != nil {
		logger.Error().Err(err).Str(mglog.FieldEvent, "config.load_failed").Str("config_path", *configPath).Msg("failed to load configuration")
		return 1
	}
	mglog.Configure(mglog.Config{Level: cfg.LogLevel, Output: os.Stderr, Service: cfg.LogService, Version: cfg.Version})
	logger = mglog.WithComponent("cli")
	config.LogSecurityPosture(logger, cfg)

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Str(mglog.FieldEvent, "telemetry.init_failed").Msg("failed to initialise tracing")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	records, err := readRecords(*input, stdin)
	if err != nil {
		logger.Error().Err(err).Str(mglog.FieldEvent, "input.invalid").Msg("failed to read records")
		return 2
	}

	svc, err := newService(cfg)
	if err != nil {
		logger.Error().Err(err).Str(mglog.FieldEvent, "startup.failed").Msg("failed to wire pipeline")
		return 1
	}
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().Err(err).Str(mglog.FieldEvent, "startup.failed").Msg("pre-flight checks failed")
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)
	workCtx, finish := context.WithCancel(gctx)
	if cfg.MetricsListen != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           metricsMux(health.NewManager(cfg.Version, health.Checkers(cfg)...)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str(mglog.FieldEvent, "metrics.listen").Str("addr", cfg.MetricsListen).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-workCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var failed int
	g.Go(func() error {
		defer finish()
		failed = svc.runAll(workCtx, records, pipeline.Options{Root: *root, UsePrefix: *usePrefix}, *parallel, stdout)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		return 1
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func metricsMux(probes *health.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", probes.ServeHealth)
	mux.HandleFunc("/readyz", probes.ServeReady)
	return mux
}
