// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/ManuGH/mediagate/internal/admission"
	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/archive"
	"github.com/ManuGH/mediagate/internal/config"
	"github.com/ManuGH/mediagate/internal/fetch"
	"github.com/ManuGH/mediagate/internal/infra/ffmpeg"
	mglog "github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/merge"
	"github.com/ManuGH/mediagate/internal/pipeline"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	"github.com/ManuGH/mediagate/internal/platform/httpx"
	pnet "github.com/ManuGH/mediagate/internal/platform/net"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type service struct {
	pipeline *pipeline.Pipeline
}

func newService(cfg config.AppConfig) (*service, error) {
	scope, err := config.BuildScope(cfg)
	if err != nil {
		return nil, err
	}
	table, err := config.AllowList(cfg)
	if err != nil {
		return nil, err
	}
	client := httpx.NewStreamingClient(httpx.Options{
		Strict:                cfg.Security.StrictValidation,
		ResponseHeaderTimeout: cfg.Fetch.ResponseHeaderTimeout,
		UserAgent:             cfg.Fetch.UserAgent,
		Trace:                 cfg.Telemetry.Enabled,
	})
	logScope(mglog.WithComponent("service"), scope, table)
	muxer := ffmpeg.NewMuxer(cfg.Merge.FFmpegBin, cfg.Merge.StderrLimitBytes, cfg.Merge.KillGrace)
	return wire(cfg, scope, pnet.NewValidator(table, pnet.DefaultResolver), client, muxer), nil
}

// logScope records the resolved roots and the address policy in effect.
func logScope(logger zerolog.Logger, scope *fs.PathScope, table *allowlist.Table) {
	logger.Info().
		Str(mglog.FieldEvent, "startup.scope").
		Strs("roots", scope.Roots()).
		Bool("strict", table.Strict()).
		Msg("path scope and allow-list ready")
}

// wire assembles the pipeline from its collaborators.
func wire(cfg config.AppConfig, scope *fs.PathScope, v *pnet.Validator, client *http.Client, muxer merge.Muxer) *service {
	engine := fetch.NewEngine(v, scope, client, fetch.Config{
		ChunkSize:         cfg.Fetch.ChunkSize,
		MaxBytes:          cfg.Fetch.MaxBytes,
		MaxRedirects:      cfg.Fetch.MaxRedirects,
		Timeout:           cfg.Fetch.Timeout,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})
	gate := admission.NewGate(cfg.Merge.Concurrency)
	merger := merge.NewOrchestrator(engine, gate, muxer, merge.Config{TempRoot: cfg.TempRoot})
	p := pipeline.New(engine, merger, archive.NewAssembler(scope), pipeline.Config{
		DownloadRoot: cfg.DownloadRoot,
		TempRoot:     cfg.TempRoot,
		Naming:       pipeline.Naming{Prefix: cfg.FilePrefix},
	})
	return &service{pipeline: p}
}

// recordInput is the JSON shape accepted on the command line.
type recordInput struct {
	Platform  string            `json:"platform"`
	Type      string            `json:"type"`
	ID        string            `json:"id"`
	VideoURL  string            `json:"video_url,omitempty"`
	AudioURL  string            `json:"audio_url,omitempty"`
	ImageURLs []string          `json:"image_urls,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Watermark bool              `json:"watermark,omitempty"`
}

func (in recordInput) record() pipeline.Record {
	return pipeline.Record{
		Platform: allowlist.Platform(in.Platform),
		Type:     pipeline.MediaType(in.Type),
		ID:       in.ID,
		URLs: pipeline.URLs{
			Primary:   in.VideoURL,
			Alternate: in.AudioURL,
			Images:    in.ImageURLs,
		},
		Headers:   in.Headers,
		Watermark: in.Watermark,
	}
}

// resultOutput is one line of the JSON report written to stdout.
type resultOutput struct {
	AttemptID string `json:"attempt_id"`
	ID        string `json:"id"`
	Status    string `json:"status"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Path      string `json:"path,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func newResultOutput(id string, res pipeline.Result) resultOutput {
	out := resultOutput{
		AttemptID: res.AttemptID,
		ID:        id,
		Status:    string(res.Status),
		Kind:      string(res.Kind),
		Path:      res.Path,
		Bytes:     res.Bytes,
		Cached:    res.Cached,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// readRecords accepts a single JSON object or an array of them.
func readRecords(path string, stdin io.Reader) ([]recordInput, error) {
	var r io.Reader = stdin
	if path != "-" {
		// #nosec G304 -- input path is provided by the operator
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return decodeRecords(r)
}

func decodeRecords(r io.Reader) ([]recordInput, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var many []recordInput
	if err := json.Unmarshal(raw, &many); err == nil {
		if len(many) == 0 {
			return nil, fmt.Errorf("input holds no records")
		}
		return many, nil
	}
	var one recordInput
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return []recordInput{one}, nil
}

// runAll downloads every record and writes one JSON line per result in
// input order. It returns the number of failed records.
func (s *service) runAll(ctx context.Context, records []recordInput, opts pipeline.Options, parallel int, w io.Writer) int {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]resultOutput, len(records))
	var (
		mu     sync.Mutex
		failed int
	)

	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, in := range records {
		g.Go(func() error {
			res := s.pipeline.AttemptDownload(ctx, in.record(), opts)
			results[i] = newResultOutput(in.ID, res)
			if !res.OK() {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(w)
	logger := mglog.WithComponent("cli")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			logger.Warn().Err(err).Msg("failed to write result")
		}
	}
	return failed
}
