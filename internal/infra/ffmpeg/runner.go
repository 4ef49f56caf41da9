// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg drives the external multiplexer.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	DefaultStderrLimit = 64 << 10
	DefaultKillGrace   = 3 * time.Second

	maxLineBytes = 4 << 10
)

var (
	// ErrLaunch means the multiplexer process could not be started.
	ErrLaunch = errors.New("multiplexer failed to launch")
	// ErrExit means the multiplexer ran and exited unsuccessfully.
	ErrExit = errors.New("multiplexer exited with failure")
)

// Result describes one multiplexer run.
type Result struct {
	ExitCode int
	// Diagnostics is the bounded tail of the process's stderr. It is for
	// operators and must not be surfaced raw to untrusted callers.
	Diagnostics []string
	StderrBytes int64
	Elapsed     time.Duration
}

// Muxer runs ffmpeg in its own process group.
type Muxer struct {
	BinaryPath  string
	StderrLimit int
	KillGrace   time.Duration
	Logger      zerolog.Logger
}

// NewMuxer returns a muxer. Zero values select defaults.
func NewMuxer(binaryPath string, stderrLimit int, killGrace time.Duration) *Muxer {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	if stderrLimit <= 0 {
		stderrLimit = DefaultStderrLimit
	}
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &Muxer{
		BinaryPath:  binaryPath,
		StderrLimit: stderrLimit,
		KillGrace:   killGrace,
		Logger:      log.WithComponent("ffmpeg"),
	}
}

// Mux combines video and audio into output and waits for the process. If ctx
// ends first the whole process group is terminated and ctx's error returned.
func (m *Muxer) Mux(ctx context.Context, video, audio, output string) (Result, error) {
	start := time.Now()
	ring := NewRingBuffer(m.StderrLimit)

	// #nosec G204 - binary comes from operator config; inputs are contained paths
	cmd := exec.Command(m.BinaryPath, muxArgs(video, audio, output)...)
	procgroup.Set(cmd)
	cmd.Stdin = nil
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: stderr pipe: %v", ErrLaunch, err)
	}
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, Elapsed: time.Since(start)}, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	logger := log.WithContext(ctx, m.Logger)
	logger.Debug().Int(log.FieldPID, cmd.Process.Pid).Str(log.FieldPath, output).Msg("multiplexer started")

	waitCh := make(chan error, 1)
	go func() {
		// Wait must not run before the pipe is drained.
		drain(stderr, ring)
		waitCh <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		logger.Info().Int(log.FieldPID, cmd.Process.Pid).Msg("context done, terminating multiplexer")
		_ = procgroup.Terminate(cmd, waitCh, m.KillGrace)
		res := m.result(cmd, ring, start)
		return res, ctx.Err()
	}

	res := m.result(cmd, ring, start)
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("%w: exit code %d", ErrExit, res.ExitCode)
		}
		return res, fmt.Errorf("%w: %v", ErrExit, waitErr)
	}
	return res, nil
}

func (m *Muxer) result(cmd *exec.Cmd, ring *RingBuffer, start time.Time) Result {
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	return Result{
		ExitCode:    code,
		Diagnostics: ring.GetAll(),
		StderrBytes: ring.Seen(),
		Elapsed:     time.Since(start),
	}
}

func drain(r io.Reader, ring *RingBuffer) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		ring.Add(scanner.Text())
	}
	// Keep reading past an over-long line so the child never blocks on a
	// full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// RingBuffer keeps the most recent lines within a byte budget.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	size  int
	limit int
	seen  int64
}

// NewRingBuffer returns a buffer holding at most limit bytes of lines.
func NewRingBuffer(limit int) *RingBuffer {
	if limit <= 0 {
		limit = DefaultStderrLimit
	}
	return &RingBuffer{limit: limit}
}

// Add appends line, truncating it to a sane length and evicting the oldest
// lines until the budget holds.
func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen += int64(len(line)) + 1
	if len(line) > maxLineBytes {
		line = line[:maxLineBytes]
	}
	if len(line) > r.limit {
		line = line[:r.limit]
	}
	r.lines = append(r.lines, line)
	r.size += len(line)
	for r.size > r.limit && len(r.lines) > 0 {
		r.size -= len(r.lines[0])
		r.lines = r.lines[1:]
	}
}

// GetAll returns the retained lines, oldest first.
func (r *RingBuffer) GetAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Seen is the total number of stderr bytes observed, retained or not.
func (r *RingBuffer) Seen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen
}
