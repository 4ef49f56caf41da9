// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/mediagate/internal/log"
	"github.com/ManuGH/mediagate/internal/metrics"
)

// Terminate stops the process group of cmd: SIGTERM, then SIGKILL if the
// process has not exited within grace. waitCh must deliver the result of
// cmd.Wait; Terminate always drains it and returns that result. It is safe
// to call on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := log.WithComponent("procgroup")
	pid := cmd.Process.Pid

	logger.Debug().Int(log.FieldPID, pid).Msg("sending SIGTERM to process group")
	signal(cmd, sigTerm, "SIGTERM")

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
	}

	logger.Warn().Int(log.FieldPID, pid).Dur("grace", grace).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	signal(cmd, sigKill, "SIGKILL")

	// SIGKILL cannot be ignored; Wait returns once the leader is reaped.
	err := <-waitCh
	if err == nil {
		metrics.IncProcWait("forced_exit0")
	} else {
		metrics.IncProcWait("forced_error")
	}
	return err
}

func signal(cmd *exec.Cmd, sig syscall.Signal, name string) {
	switch err := Kill(cmd, sig); {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case alreadyGone(err):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
		logger := log.WithComponent("procgroup")
		logger.Error().Err(err).Str("signal", name).Msg("failed to signal process group")
	}
}
