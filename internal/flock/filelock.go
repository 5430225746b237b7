// Package flock serialises processes that modify the same location through a PID file placed next
// to it.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNoPID         = errors.New("failed to determine PID of process holding the lock")
	ErrNoLockRelease = errors.New("unable to release file lock")
)

const (
	pollInterval        = 100 * time.Millisecond
	pidWriteGracePeriod = 1 * time.Second
)

// Lock blocks until the lock for path is held by this process or the context is done. The returned
// function releases the lock.
func Lock(ctx context.Context, log *zap.Logger, path string) (func() error, error) {
	log = log.With(zap.String("lock", path+".pid"))
	for {
		ok, err := AcquireFileLock(ctx, log, path)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() error { return ReleaseFileLock(log, path) }, nil
		}
	}
}

// AcquireFileLock attempts to take the lock once. When another live process holds it, it waits for
// that lock to be released and then reports false so that the caller can retry.
func AcquireFileLock(ctx context.Context, log *zap.Logger, path string) (bool, error) {
	sem, err := os.OpenFile(path+".pid", os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil && !errors.Is(err, os.ErrExist) {
		log.Error("Unable to create lock file.", zap.Error(err))
		return false, err
	} else if errors.Is(err, os.ErrExist) {
		log.Debug("Lockfile already exists. Waiting for it to be released.")
		return false, waitOnPID(ctx, log, path)
	}

	log.Debug("Acquired lock. Writing PID to file.")
	if _, err = fmt.Fprint(sem, os.Getpid()); err != nil {
		_ = sem.Close()
		return false, err
	} else if err = sem.Close(); err != nil {
		return false, err
	}
	return true, nil
}

func ReleaseFileLock(log *zap.Logger, path string) error {
	log.Debug("Deleting lock file.")
	if err := os.Remove(path + ".pid"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("Could not delete lock file.", zap.Error(err))
		return fmt.Errorf("%w(%s): %w", ErrNoLockRelease, path+".pid", err)
	}
	return nil
}

func waitOnPID(ctx context.Context, log *zap.Logger, path string) error {
	for iterations := 1; ; iterations++ {
		if iterations%100 == 0 {
			log.Info("Waiting for another process to release the lock.")
		}

		c, err := os.ReadFile(path + ".pid")
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Debug("Lock has been released. PID file was deleted.")
				return nil
			}
			return err
		}

		var pid int
		if _, err = fmt.Sscan(string(c), &pid); err != nil {
			log.Debug("Error reading PID.", zap.Error(err))
			// The owner may not have written its PID yet. Past the grace period it is presumed to have
			// died before doing so.
			fi, err := os.Stat(path + ".pid")
			if errors.Is(err, os.ErrNotExist) {
				return nil
			} else if err != nil {
				return err
			}
			if time.Since(fi.ModTime()) >= pidWriteGracePeriod {
				log.Debug("Forcing lock release after PID-write grace period expired.")
				return ReleaseFileLock(log, path)
			}
		} else if !processIsRunning(pid) {
			log.Debug("Forcing lock release after owning PID exited.", zap.Int("pid", pid))
			return ReleaseFileLock(log, path)
		}

		select {
		case <-ctx.Done():
			log.Error("Gave up waiting on lock.", zap.Error(ctx.Err()))
			return fmt.Errorf("%w: %w", ErrNoPID, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}
