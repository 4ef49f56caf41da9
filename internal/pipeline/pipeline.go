// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline turns a parsed media record into a finished artifact on
// disk: a single video, a multiplexed video or an archive of images.
//
// Every outcome, including cancellation, is returned as a Result value; the
// caller maps it to a transport response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/mediagate/internal/archive"
	"github.com/ManuGH/mediagate/internal/fetch"
	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/merge"
	"github.com/ManuGH/mediagate/internal/metrics"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	"github.com/ManuGH/mediagate/internal/telemetry"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
)

const (
	ContentTypeMP4 = "video/mp4"
	ContentTypeZip = "application/zip"
)

// ErrNotImage rejects a non-image payload delivered for an image record.
var ErrNotImage = errors.New("payload is not an image")

// Options are per-attempt choices of the caller.
type Options struct {
	// UsePrefix prepends Naming.Prefix to produced file names.
	UsePrefix bool
	// Root overrides the download root. It must be a directory inside the
	// path scope.
	Root string
}

// Result is the terminal outcome of one attempt.
type Result struct {
	AttemptID   string
	Status      fetch.Status
	Kind        fetch.FailureKind
	Err         error
	Path        string
	FileName    string
	ContentType string
	Bytes       int64
	Elapsed     time.Duration
	// Cached is set when the artifact already existed and nothing was
	// fetched.
	Cached bool
	// Merge is set for split-stream videos.
	Merge *merge.Outcome
}

// OK reports whether the artifact is available at Path.
func (r Result) OK() bool { return r.Status == fetch.StatusSuccess }

// Config wires a Pipeline.
type Config struct {
	DownloadRoot string
	TempRoot     string
	Naming       Naming
}

// Pipeline runs download attempts.
type Pipeline struct {
	engine    *fetch.Engine
	merger    *merge.Orchestrator
	assembler *archive.Assembler
	scope     *fs.PathScope
	cfg       Config
	logger    zerolog.Logger
}

// New returns a pipeline. All collaborators must share one path scope.
func New(engine *fetch.Engine, merger *merge.Orchestrator, assembler *archive.Assembler, cfg Config) *Pipeline {
	return &Pipeline{
		engine:    engine,
		merger:    merger,
		assembler: assembler,
		scope:     engine.Scope(),
		cfg:       cfg,
		logger:    log.WithComponent("pipeline"),
	}
}

// AttemptDownload produces the artifact for rec. It never panics and never
// leaves partial files behind.
func (p *Pipeline) AttemptDownload(ctx context.Context, rec Record, opts Options) (res Result) {
	start := time.Now()
	res.AttemptID = uuid.NewString()
	ctx = log.ContextWithRequestID(ctx, res.AttemptID)
	logger := log.WithContext(ctx, p.logger)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPipelineAttempt)
	defer span.End()
	span.SetAttributes(telemetry.MediaAttributes(string(rec.Platform), string(rec.Type), rec.ID)...)

	defer func() {
		res.Elapsed = time.Since(start)
		metrics.RecordAttempt(string(rec.Platform), string(rec.Type), string(res.Status))
		if !res.OK() {
			telemetry.RecordFailure(span, string(res.Kind), res.Err)
			logger.Warn().
				Err(res.Err).
				Str(log.FieldEvent, "download.failed").
				Str(log.FieldPlatform, string(rec.Platform)).
				Str(log.FieldType, string(rec.Type)).
				Str(log.FieldKind, string(res.Kind)).
				Str(log.FieldStatus, string(res.Status)).
				Int64(log.FieldElapsedMS, res.Elapsed.Milliseconds()).
				Msg("download attempt failed")
			return
		}
		logger.Info().
			Str(log.FieldEvent, "download.complete").
			Str(log.FieldPlatform, string(rec.Platform)).
			Str(log.FieldType, string(rec.Type)).
			Str(log.FieldPath, res.Path).
			Bool("cached", res.Cached).
			Int64(log.FieldBytes, res.Bytes).
			Int64(log.FieldElapsedMS, res.Elapsed.Milliseconds()).
			Msg("download attempt complete")
	}()

	if err := rec.Check(); err != nil {
		return failed(res, err)
	}
	dir, err := p.targetDir(rec, opts)
	if err != nil {
		return failed(res, err)
	}

	switch rec.Type {
	case TypeImage:
		return p.images(ctx, rec, opts, dir, res)
	default:
		return p.video(ctx, rec, opts, dir, res)
	}
}

func (p *Pipeline) targetDir(rec Record, opts Options) (string, error) {
	root := p.cfg.DownloadRoot
	if opts.Root != "" {
		root = opts.Root
	}
	sub, err := p.cfg.Naming.Subdir(rec.Platform, rec.Type)
	if err != nil {
		return "", err
	}
	dir, err := p.scope.Join(root, sub)
	if err != nil {
		return "", err
	}
	return p.scope.MkdirAll(dir)
}

// cached returns the artifact path when it already exists.
func (p *Pipeline) cached(dest string) (int64, bool) {
	info, err := os.Lstat(dest)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

func (p *Pipeline) video(ctx context.Context, rec Record, opts Options, dir string, res Result) Result {
	name, err := p.cfg.Naming.Video(rec, opts.UsePrefix)
	if err != nil {
		return failed(res, err)
	}
	dest, err := p.scope.Join(dir, name)
	if err != nil {
		return failed(res, err)
	}
	res.FileName = name
	res.ContentType = ContentTypeMP4
	if size, ok := p.cached(dest); ok {
		return cachedResult(res, dest, size)
	}

	if splitStream(rec.Platform) {
		out := p.merger.Run(ctx, merge.Job{
			ID:       res.AttemptID,
			Platform: rec.Platform,
			VideoURL: rec.URLs.Primary,
			AudioURL: rec.URLs.Alternate,
			Output:   dest,
			Headers:  rec.Headers,
		})
		res.Merge = &out
		if !out.OK() {
			res.Status, res.Kind, res.Err = out.Status, out.Kind, out.Err
			return res
		}
		res.Status = fetch.StatusSuccess
		res.Path = out.Path
		res.Bytes, _ = p.cached(out.Path)
		return res
	}

	out := p.engine.Fetch(ctx, fetch.Request{
		Platform:    rec.Platform,
		URL:         rec.URLs.Primary,
		Headers:     rec.Headers,
		Destination: dest,
	})
	res.Bytes = out.BytesWritten
	if !out.OK() {
		res.Status, res.Kind, res.Err = out.Status, out.Kind, out.Err
		return res
	}
	res.Status = fetch.StatusSuccess
	res.Path = out.Path
	return res
}

func (p *Pipeline) images(ctx context.Context, rec Record, opts Options, dir string, res Result) Result {
	name, err := p.cfg.Naming.Archive(rec, opts.UsePrefix)
	if err != nil {
		return failed(res, err)
	}
	dest, err := p.scope.Join(dir, name)
	if err != nil {
		return failed(res, err)
	}
	res.FileName = name
	res.ContentType = ContentTypeZip
	if size, ok := p.cached(dest); ok {
		return cachedResult(res, dest, size)
	}

	scratch, err := p.scope.MkdirTemp(p.cfg.TempRoot, "images-"+fs.SafeToken(res.AttemptID)+"-")
	if err != nil {
		return failed(res, err)
	}
	defer func() {
		if err := p.scope.RemoveAll(scratch); err != nil {
			logger := log.WithContext(ctx, p.logger)
			logger.Error().Err(err).Str(log.FieldPath, scratch).Msg("failed to remove image scratch directory")
		}
	}()

	files := make([]string, 0, len(rec.URLs.Images))
	for i, u := range rec.URLs.Images {
		path, n, err := p.image(ctx, rec, opts, scratch, i+1, u)
		if err != nil {
			return failed(res, err)
		}
		res.Bytes += n
		files = append(files, path)
	}

	path, err := p.assembler.Assemble(ctx, files, dest)
	if err != nil {
		return failed(res, err)
	}
	res.Status = fetch.StatusSuccess
	res.Path = path
	return res
}

// image fetches one image, naming it by its sniffed type.
func (p *Pipeline) image(ctx context.Context, rec Record, opts Options, scratch string, index int, rawURL string) (string, int64, error) {
	resp, err := p.engine.Open(ctx, fetch.Request{
		Platform: rec.Platform,
		URL:      rawURL,
		Headers:  rec.Headers,
	})
	if err != nil {
		return "", 0, err
	}

	ext, err := imageExtension(resp.Sniff(), resp.ContentType)
	if err != nil {
		_ = resp.Close()
		return "", 0, fmt.Errorf("image %d: %w", index, err)
	}
	name, err := p.cfg.Naming.Image(rec, opts.UsePrefix, index, ext)
	if err != nil {
		_ = resp.Close()
		return "", 0, err
	}

	out := p.engine.Stream(ctx, resp, filepath.Join(scratch, name))
	if !out.OK() {
		return "", out.BytesWritten, fmt.Errorf("image %d: %w", index, out.Err)
	}
	return out.Path, out.BytesWritten, nil
}

// imageExtension prefers the sniffed type and falls back to the declared
// image subtype.
func imageExtension(head []byte, contentType string) (string, error) {
	if filetype.IsImage(head) {
		kind, err := filetype.Match(head)
		if err == nil && kind != filetype.Unknown {
			return kind.Extension, nil
		}
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if sub, ok := strings.CutPrefix(mediaType, "image/"); ok && sub != "" {
			return sub, nil
		}
	}
	return "", fmt.Errorf("%w: content type %q", ErrNotImage, contentType)
}

func failed(res Result, err error) Result {
	kind := fetch.Classify(err)
	res.Status = fetch.StatusFailed
	if kind == fetch.KindCancelled {
		res.Status = fetch.StatusCancelled
	}
	res.Kind = kind
	res.Err = err
	res.Path = ""
	return res
}

func cachedResult(res Result, path string, size int64) Result {
	res.Status = fetch.StatusSuccess
	res.Cached = true
	res.Path = path
	res.Bytes = size
	return res
}
