// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package archive bundles already fetched files into one zip.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/metrics"
	"github.com/ManuGH/mediagate/internal/platform/fs"
	"github.com/ManuGH/mediagate/internal/telemetry"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrNoInputs       = errors.New("archive has no inputs")
	ErrDuplicateEntry = errors.New("duplicate archive entry name")
)

// Assembler writes archives inside a path scope.
type Assembler struct {
	scope  *fs.PathScope
	logger zerolog.Logger
}

// NewAssembler returns an assembler confined to scope.
func NewAssembler(scope *fs.PathScope) *Assembler {
	return &Assembler{scope: scope, logger: log.WithComponent("archive")}
}

// Assemble writes inputs, in order and under their base names, into a new
// archive at dest and returns its canonical path. On any error nothing is
// left at dest.
func (a *Assembler) Assemble(ctx context.Context, inputs []string, dest string) (path string, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanArchiveAssemble)
	defer span.End()
	span.SetAttributes(attribute.Int(telemetry.ArchiveEntriesKey, len(inputs)))

	defer func() {
		metrics.RecordArchive(err == nil, len(inputs))
		logger := log.WithContext(ctx, a.logger)
		if err != nil {
			telemetry.RecordFailure(span, "archive", err)
			logger.Warn().Err(err).Str(log.FieldEvent, "archive.failed").Msg("archive assembly failed")
			return
		}
		logger.Debug().
			Str(log.FieldEvent, "archive.complete").
			Str(log.FieldPath, path).
			Int("entries", len(inputs)).
			Int64(log.FieldElapsedMS, time.Since(start).Milliseconds()).
			Msg("archive assembled")
	}()

	if len(inputs) == 0 {
		return "", ErrNoInputs
	}
	files, err := a.checkInputs(inputs)
	if err != nil {
		return "", err
	}

	out, err := a.scope.CreateAtomic(dest)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Cleanup() }()

	zw := zip.NewWriter(out)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := addFile(zw, f.name, f.path); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := out.Commit(); err != nil {
		return "", err
	}
	return out.Path(), nil
}

// entry pairs the archive name, taken from the caller's path, with the
// contained path the bytes are read from.
type entry struct {
	name string
	path string
}

func (a *Assembler) checkInputs(inputs []string) ([]entry, error) {
	files := make([]entry, 0, len(inputs))
	names := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		resolved, err := a.scope.Contain(in)
		if err != nil {
			return nil, err
		}
		if err := fs.IsRegularFile(resolved); err != nil {
			return nil, err
		}
		name := filepath.Base(in)
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
		}
		names[name] = struct{}{}
		files = append(files, entry{name: name, path: resolved})
	}
	return files, nil
}

func addFile(zw *zip.Writer, name, path string) error {
	f, err := os.Open(path) // #nosec G304 - path is contained by the caller
	if err != nil {
		return fmt.Errorf("open archive input: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive input: %w", err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("archive header %s: %w", path, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("archive entry %s: %w", hdr.Name, err)
	}
	return nil
}
