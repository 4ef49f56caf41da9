// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts external tools in their own process group so a
// cancelled job can take down the tool and every helper it spawned.
package procgroup

import (
	"errors"
	"os"
	"syscall"
)

// ErrKillFailed is returned when a signal could not be delivered for a reason
// other than the process already being gone.
var ErrKillFailed = errors.New("kill operation failed")

func alreadyGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
