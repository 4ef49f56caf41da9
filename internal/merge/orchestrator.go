// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package merge downloads split video and audio streams and multiplexes them
// into one container under a process-wide admission limit.
//
// Temporary elementary streams live in a private directory under the temp
// root that is removed on every exit path. The output is staged beside its
// destination and only renamed into place after the multiplexer succeeded.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/mediagate/internal/admission"
	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/fetch"
	"github.com/ManuGH/mediagate/internal/infra/ffmpeg"
	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/metrics"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	"github.com/ManuGH/mediagate/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	videoFile = "video.m4s"
	audioFile = "audio.m4s"
)

// Muxer combines two elementary streams into output.
type Muxer interface {
	Mux(ctx context.Context, video, audio, output string) (ffmpeg.Result, error)
}

// Job is one merge request.
type Job struct {
	// ID is generated when empty.
	ID       string
	Platform allowlist.Platform
	VideoURL string
	AudioURL string
	Output   string
	Headers  map[string]string
}

// Outcome is the terminal result of a job.
type Outcome struct {
	JobID   string
	Status  fetch.Status
	State   State
	Kind    fetch.FailureKind
	Err     error
	Path    string
	Elapsed time.Duration

	VideoBytes int64
	AudioBytes int64

	// Diagnostics is the bounded stderr tail of a failed multiplexer run.
	// Operators only; never forward it to an untrusted caller.
	Diagnostics []string
	ExitCode    int
}

// OK reports whether the job completed.
func (o Outcome) OK() bool { return o.Status == fetch.StatusSuccess }

// MuxError is a failed or unlaunchable multiplexer run.
type MuxError struct {
	Result ffmpeg.Result
	Err    error
}

func (e *MuxError) Error() string { return "mux: " + e.Err.Error() }
func (e *MuxError) Unwrap() error { return e.Err }

// FailureKind implements fetch.Kinded.
func (e *MuxError) FailureKind() fetch.FailureKind { return fetch.KindMerge }

// Config tunes an Orchestrator.
type Config struct {
	// TempRoot holds per-job scratch directories. It must lie inside the
	// engine's scope.
	TempRoot string
	Observer Observer
}

// Orchestrator runs merge jobs.
type Orchestrator struct {
	engine *fetch.Engine
	scope  *fs.PathScope
	gate   *admission.Gate
	muxer  Muxer
	cfg    Config
	logger zerolog.Logger
}

// NewOrchestrator wires an orchestrator. The gate is shared by every
// orchestrator of the process.
func NewOrchestrator(engine *fetch.Engine, gate *admission.Gate, muxer Muxer, cfg Config) *Orchestrator {
	return &Orchestrator{
		engine: engine,
		scope:  engine.Scope(),
		gate:   gate,
		muxer:  muxer,
		cfg:    cfg,
		logger: log.WithComponent("merge"),
	}
}

// Run executes job to a terminal state. It never panics and never leaves
// scratch files behind.
func (o *Orchestrator) Run(ctx context.Context, job Job) (out Outcome) {
	start := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx = log.ContextWithJobID(ctx, job.ID)
	logger := log.WithContext(ctx, o.logger)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanMergeJob)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.PlatformKey, string(job.Platform)))

	m := newMachine(job.ID, o.cfg.Observer)
	out = Outcome{JobID: job.ID, ExitCode: -1}

	defer func() {
		out.Elapsed = time.Since(start)
		out.State = m.State()
		span.SetAttributes(telemetry.MergeAttributes(job.ID, string(out.State))...)
		metrics.RecordMerge(string(out.Status), string(out.Kind), out.Elapsed)

		if out.OK() {
			logger.Info().
				Str(log.FieldEvent, "merge.complete").
				Str(log.FieldPlatform, string(job.Platform)).
				Str(log.FieldPath, out.Path).
				Int64(log.FieldBytes, out.VideoBytes+out.AudioBytes).
				Int64(log.FieldElapsedMS, out.Elapsed.Milliseconds()).
				Msg("merge job complete")
			return
		}
		telemetry.RecordFailure(span, string(out.Kind), out.Err)
		logger.Warn().
			Err(out.Err).
			Str(log.FieldEvent, "merge.failed").
			Str(log.FieldPlatform, string(job.Platform)).
			Str(log.FieldKind, string(out.Kind)).
			Int(log.FieldExitCode, out.ExitCode).
			Int("stderr_lines", len(out.Diagnostics)).
			Int64(log.FieldElapsedMS, out.Elapsed.Milliseconds()).
			Msg("merge job failed")
	}()

	fail := func(err error) Outcome {
		if m.State() != StateFailed {
			_ = m.advance(StateFailed)
		}
		kind := fetch.Classify(err)
		out.Status = fetch.StatusFailed
		if kind == fetch.KindCancelled {
			out.Status = fetch.StatusCancelled
		}
		out.Kind = kind
		out.Err = err
		out.Path = ""
		return out
	}

	output, err := o.checkOutput(job.Output)
	if err != nil {
		return fail(err)
	}

	if err := m.advance(StateDownloadingVideo); err != nil {
		return fail(err)
	}
	dir, err := o.scope.MkdirTemp(o.cfg.TempRoot, "merge-"+fs.SafeToken(job.ID)+"-")
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := o.scope.RemoveAll(dir); err != nil {
			logger.Error().Err(err).Str(log.FieldPath, dir).Msg("failed to remove merge scratch directory")
		}
	}()
	video := filepath.Join(dir, videoFile)
	audio := filepath.Join(dir, audioFile)

	if err := o.download(ctx, m, job, video, audio, &out); err != nil {
		return fail(err)
	}

	if err := m.advance(StateAwaitingAdmission); err != nil {
		return fail(err)
	}
	release, err := o.gate.Acquire(ctx)
	if err != nil {
		return fail(err)
	}
	// Released once the job has left Muxing, so no two jobs are ever
	// observed muxing at once.
	defer release()

	if err := m.advance(StateMuxing); err != nil {
		return fail(err)
	}
	res, err := o.mux(ctx, video, audio, output)
	out.ExitCode = res.ExitCode
	if err != nil {
		out.Diagnostics = res.Diagnostics
		if ctx.Err() == nil {
			logger.Warn().
				Int(log.FieldExitCode, res.ExitCode).
				Int64("stderr_bytes", res.StderrBytes).
				Msg("multiplexer failed")
		}
		return fail(err)
	}

	if err := m.advance(StateComplete); err != nil {
		return fail(err)
	}
	out.Status = fetch.StatusSuccess
	out.Path = output
	return out
}

// checkOutput proves the destination is inside scope and free.
func (o *Orchestrator) checkOutput(dest string) (string, error) {
	output, err := o.scope.Contain(dest)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(output); err == nil {
		return "", fmt.Errorf("%w: %s", fs.ErrDestinationExists, output)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", output, err)
	}
	return output, nil
}

// download fetches both elementary streams in parallel. The first failure
// cancels the sibling.
func (o *Orchestrator) download(ctx context.Context, m *machine, job Job, video, audio string, out *Outcome) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res := o.engine.Fetch(gctx, fetch.Request{
			Platform:    job.Platform,
			URL:         job.VideoURL,
			Headers:     job.Headers,
			Destination: video,
		})
		if !res.OK() {
			return fmt.Errorf("video stream: %w", res.Err)
		}
		out.VideoBytes = res.BytesWritten
		return m.advance(StateDownloadingAudio)
	})
	g.Go(func() error {
		res := o.engine.Fetch(gctx, fetch.Request{
			Platform:    job.Platform,
			URL:         job.AudioURL,
			Headers:     job.Headers,
			Destination: audio,
		})
		if !res.OK() {
			return fmt.Errorf("audio stream: %w", res.Err)
		}
		out.AudioBytes = res.BytesWritten
		return nil
	})

	return g.Wait()
}

// mux runs the multiplexer into a staging file beside output and places it
// only on success.
func (o *Orchestrator) mux(ctx context.Context, video, audio, output string) (ffmpeg.Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanMergeMux)
	defer span.End()

	staged, err := o.scope.CreateAtomic(output)
	if err != nil {
		return ffmpeg.Result{ExitCode: -1}, err
	}
	defer func() { _ = staged.Cleanup() }()

	res, err := o.muxer.Mux(ctx, video, audio, staged.StagingPath())
	span.SetAttributes(attribute.Int(telemetry.MergeExitCodeKey, res.ExitCode))
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return res, fmt.Errorf("%w: %v", cerr, err)
		}
		return res, &MuxError{Result: res, Err: err}
	}
	if err := staged.Commit(); err != nil {
		return res, err
	}
	return res, nil
}
