// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !windows

package fs

import (
	"github.com/google/renameio/v2"
)

type renamePending struct {
	*renameio.PendingFile
}

func newPendingFile(dest, dir string) (pendingFile, error) {
	// WithTempDir pins the staging file next to dest; the default would
	// prefer $TMPDIR, which may lie outside every permitted root.
	pf, err := renameio.NewPendingFile(dest,
		renameio.WithTempDir(dir),
		renameio.WithPermissions(0o640),
	)
	if err != nil {
		return nil, err
	}
	return renamePending{pf}, nil
}

func (p renamePending) commit() error  { return p.CloseAtomicallyReplace() }
func (p renamePending) cleanup() error { return p.Cleanup() }
