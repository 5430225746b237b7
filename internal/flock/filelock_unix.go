//go:build unix

package flock

import (
	"errors"
	"os"
	"syscall"
)

// processIsRunning probes the PID with signal 0. A process owned by another user can not be
// signalled but is still alive, so a permission error counts as running.
func processIsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
