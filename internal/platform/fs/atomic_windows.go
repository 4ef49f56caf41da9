// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package fs

import (
	"errors"
	"os"
	"path/filepath"
)

type osPending struct {
	*os.File
	dest string
}

func newPendingFile(dest, dir string) (pendingFile, error) {
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+"-*.part")
	if err != nil {
		return nil, err
	}
	return &osPending{File: f, dest: dest}, nil
}

func (p *osPending) commit() error {
	if err := p.Sync(); err != nil {
		return err
	}
	if err := p.Close(); err != nil {
		return err
	}
	return os.Rename(p.Name(), p.dest)
}

func (p *osPending) cleanup() error {
	_ = p.Close()
	if err := os.Remove(p.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
