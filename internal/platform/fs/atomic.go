// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrDestinationExists is returned when a write would replace an existing file.
var ErrDestinationExists = errors.New("destination already exists")

// pendingFile is a temporary file that is either renamed onto its
// destination or removed.
type pendingFile interface {
	Write(p []byte) (int, error)
	Name() string
	commit() error
	cleanup() error
}

// AtomicFile stages a write next to its destination. The destination comes
// into existence only on Commit; until then readers see nothing.
type AtomicFile struct {
	dest    string
	pending pendingFile
	done    bool
}

// CreateAtomic contains dest, refuses an existing destination and opens a
// pending file in the destination's directory, which keeps the staging file
// inside the scope as well.
func (s *PathScope) CreateAtomic(dest string) (*AtomicFile, error) {
	resolved, err := s.Contain(dest)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(resolved); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, resolved)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}

	dir := filepath.Dir(resolved)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if _, err := s.MkdirAll(dir); err != nil {
			return nil, err
		}
	}

	pending, err := newPendingFile(resolved, dir)
	if err != nil {
		return nil, fmt.Errorf("create pending file: %w", err)
	}
	return &AtomicFile{dest: resolved, pending: pending}, nil
}

// Write appends to the pending file.
func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.pending.Write(p)
}

// Path is the final destination.
func (f *AtomicFile) Path() string { return f.dest }

// StagingPath is the temporary file currently being written.
func (f *AtomicFile) StagingPath() string { return f.pending.Name() }

// Commit syncs the pending file and renames it onto the destination. It
// fails if the destination appeared while the file was being written.
func (f *AtomicFile) Commit() error {
	if f.done {
		return errors.New("atomic file already finished")
	}
	if _, err := os.Lstat(f.dest); err == nil {
		_ = f.Cleanup()
		return fmt.Errorf("%w: %s", ErrDestinationExists, f.dest)
	}
	if err := f.pending.commit(); err != nil {
		_ = f.Cleanup()
		return fmt.Errorf("commit %s: %w", f.dest, err)
	}
	f.done = true
	return nil
}

// Cleanup removes the pending file. It is a no-op after Commit and safe to
// call more than once.
func (f *AtomicFile) Cleanup() error {
	if f.done {
		return nil
	}
	f.done = true
	return f.pending.cleanup()
}
