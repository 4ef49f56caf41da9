// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fetch streams validated remote objects to contained destinations.
//
// A destination file exists with full content if and only if the returned
// Outcome is a success: bytes go to a staging file beside the destination
// that is renamed into place only after the body ended cleanly.
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ManuGH/mediagate/internal/allowlist"
	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/metrics"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	pnet "github.com/ManuGH/mediagate/internal/platform/net"
	"github.com/ManuGH/mediagate/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	DefaultChunkSize    = 64 << 10
	DefaultMaxRedirects = 10

	// SniffLen is the number of leading body bytes Response.Sniff exposes.
	SniffLen = 512
)

// Request is one fetch attempt. It is not mutated once validation begins.
type Request struct {
	Platform    allowlist.Platform
	URL         string
	Headers     map[string]string
	Destination string
}

// Config tunes an Engine.
type Config struct {
	ChunkSize int
	// MaxBytes caps the body size; 0 means unlimited.
	MaxBytes int64
	// MaxRedirects caps followed hops; values <= 0 use DefaultMaxRedirects.
	MaxRedirects int
	// Timeout bounds a whole attempt; 0 leaves it to the caller's context.
	Timeout time.Duration
	// RequestsPerSecond limits outbound requests; 0 means unlimited.
	RequestsPerSecond float64
}

// Engine validates, audits and streams remote objects.
type Engine struct {
	validator *pnet.Validator
	auditor   *pnet.RedirectAuditor
	scope     *fs.PathScope
	client    *http.Client
	limiter   *rate.Limiter
	cfg       Config
	bufs      sync.Pool
	logger    zerolog.Logger
}

// NewEngine wires an engine. client should come from
// httpx.NewStreamingClient; its CheckRedirect is replaced per request.
func NewEngine(v *pnet.Validator, scope *fs.PathScope, client *http.Client, cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	e := &Engine{
		validator: v,
		auditor:   pnet.NewRedirectAuditor(v),
		scope:     scope,
		client:    client,
		cfg:       cfg,
		logger:    log.WithComponent("fetch"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	size := cfg.ChunkSize
	e.bufs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return e
}

// Scope returns the engine's path scope.
func (e *Engine) Scope() *fs.PathScope { return e.scope }

// Response is an open response whose whole redirect chain passed audit.
type Response struct {
	Platform      allowlist.Platform
	FinalURL      *url.URL
	Chain         []*url.URL
	StatusCode    int
	ContentType   string
	ContentLength int64

	ctx    context.Context
	start  time.Time
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
}

// Sniff returns up to SniffLen leading body bytes without consuming them.
func (r *Response) Sniff() []byte {
	b, _ := r.reader.Peek(SniffLen)
	return b
}

// cancelled reports the caller's cancellation or the attempt deadline.
func (r *Response) cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.ctx.Err()
}

// Close releases the response.
func (r *Response) Close() error {
	if r.cancel != nil {
		defer r.cancel()
	}
	return r.body.Close()
}

// Fetch validates req.URL, follows and audits redirects and streams the body
// to req.Destination.
func (e *Engine) Fetch(ctx context.Context, req Request) Outcome {
	start := time.Now()
	resp, err := e.Open(ctx, req)
	if err != nil {
		out := Failure(err, start)
		e.finish(ctx, req.Platform, out, req.URL)
		return out
	}
	return e.Stream(ctx, resp, req.Destination)
}

// Open performs the validated request and returns the audited response. The
// caller must Close it or hand it to Stream.
func (e *Engine) Open(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canon, err := e.validator.Validate(ctx, req.Platform, req.URL)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := ctx, context.CancelFunc(nil)
	if e.cfg.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
	}
	fail := func(err error) (*Response, error) {
		if cancel != nil {
			cancel()
		}
		if cerr := attemptCtx.Err(); cerr != nil {
			return nil, fmt.Errorf("%w: %v", cerr, err)
		}
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(attemptCtx); err != nil {
			return fail(err)
		}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, canon.String(), nil)
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	chain := []*url.URL{canon}
	client := *e.client
	client.CheckRedirect = e.auditor.CheckRedirect(attemptCtx, req.Platform, e.cfg.MaxRedirects, func(hop *url.URL) {
		chain = append(chain, hop)
	})

	resp, err := client.Do(httpReq)
	if err != nil {
		return fail(err)
	}

	// Every hop was checked before it was followed; the full chain is
	// audited once more before a single body byte is trusted.
	if err := e.auditor.Audit(attemptCtx, req.Platform, chain); err != nil {
		_ = resp.Body.Close()
		return fail(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		_ = resp.Body.Close()
		return fail(&StatusError{Code: resp.StatusCode})
	}

	return &Response{
		Platform:      req.Platform,
		FinalURL:      resp.Request.URL,
		Chain:         chain,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		ctx:           attemptCtx,
		start:         start,
		body:          resp.Body,
		reader:        bufio.NewReaderSize(resp.Body, e.cfg.ChunkSize),
		cancel:        cancel,
	}, nil
}

// Stream copies resp to destination in fixed-size chunks, checking ctx
// before every chunk write. resp is always closed.
func (e *Engine) Stream(ctx context.Context, resp *Response, destination string) Outcome {
	defer func() { _ = resp.Close() }()

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchStream)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.PlatformKey, string(resp.Platform)))

	written, path, err := e.copyTo(ctx, resp, destination)
	finalURL := pnet.SanitizeURL(resp.FinalURL.String())

	var out Outcome
	if err != nil {
		if cerr := resp.cancelled(ctx); cerr != nil && Classify(err) != KindCancelled {
			err = fmt.Errorf("%w: %v", cerr, err)
		}
		out = Failure(err, resp.start)
		telemetry.RecordFailure(span, string(out.Kind), err)
	} else {
		out = Outcome{
			Status:  StatusSuccess,
			Elapsed: time.Since(resp.start),
			Path:    path,
		}
	}
	out.BytesWritten = written
	out.FinalURL = finalURL
	out.Hops = len(resp.Chain) - 1
	out.ContentType = resp.ContentType
	span.SetAttributes(telemetry.FetchAttributes(finalURL, string(out.Status), written, out.Hops)...)

	e.finish(ctx, resp.Platform, out, finalURL)
	return out
}

func (e *Engine) copyTo(ctx context.Context, resp *Response, destination string) (int64, string, error) {
	dst, err := e.scope.CreateAtomic(destination)
	if err != nil {
		return 0, "", err
	}
	// No-op after a successful Commit.
	defer func() { _ = dst.Cleanup() }()

	bp := e.bufs.Get().(*[]byte)
	defer e.bufs.Put(bp)
	buf := *bp

	var written int64
	for {
		if err := resp.cancelled(ctx); err != nil {
			return written, "", err
		}
		n, rerr := resp.reader.Read(buf)
		if n > 0 {
			if err := resp.cancelled(ctx); err != nil {
				return written, "", err
			}
			if e.cfg.MaxBytes > 0 && written+int64(n) > e.cfg.MaxBytes {
				return written, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, e.cfg.MaxBytes)
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, "", fmt.Errorf("write %s: %w", dst.StagingPath(), werr)
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, "", fmt.Errorf("read body: %w", rerr)
		}
	}

	if err := dst.Commit(); err != nil {
		return written, "", err
	}
	return written, dst.Path(), nil
}

func (e *Engine) finish(ctx context.Context, platform allowlist.Platform, out Outcome, rawURL string) {
	metrics.RecordFetch(string(out.Status), string(out.Kind), out.BytesWritten, out.Elapsed)

	logger := log.WithContext(ctx, e.logger)
	var ev *zerolog.Event
	switch out.Status {
	case StatusSuccess:
		ev = logger.Debug()
	case StatusCancelled:
		ev = logger.Info()
	default:
		ev = logger.Warn().Err(out.Err)
	}
	ev.Str(log.FieldEvent, "fetch."+string(out.Status)).
		Str(log.FieldPlatform, string(platform)).
		Str(log.FieldURL, pnet.SanitizeURL(rawURL)).
		Str(log.FieldKind, string(out.Kind)).
		Int64(log.FieldBytes, out.BytesWritten).
		Int64(log.FieldElapsedMS, out.Elapsed.Milliseconds()).
		Msg("fetch finished")
}
