//go:build windows

package flock

import (
	"os"
)

// processIsRunning relies on FindProcess opening a handle to the process, which fails once it has
// exited.
func processIsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}
