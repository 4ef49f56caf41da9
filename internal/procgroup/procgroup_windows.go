// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"fmt"
	"os/exec"
	"syscall"
)

const (
	sigTerm = syscall.SIGTERM
	sigKill = syscall.SIGKILL
)

// Set is a no-op on Windows; there is no POSIX process group to create.
func Set(cmd *exec.Cmd) {}

// Kill terminates the root process only. Windows cannot deliver SIGTERM, so
// every signal becomes a hard kill.
func Kill(cmd *exec.Cmd, _ syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		if alreadyGone(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrKillFailed, err)
	}
	return nil
}
