// Package store implements the on-disk record store of spec.md §4.2:
// the master file list, append-only data files, per-attribute index
// files, and the placeholder-lock protocol that serializes writers.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// PlaceholderLock serializes writers to a master file list. It prefers
// a whole-file advisory lock (unix.Flock) and falls back to a
// dot-file lock built from a uniquely named temporary linked into
// place, with bounded-backoff retry, on filesystems where flock is
// unavailable (spec.md §4.2).
type PlaceholderLock struct {
	path     string // e.g. ".../master.lock"
	f        *os.File
	dotLock  bool
	dotPath  string
}

// LockOptions bounds the retry behaviour of both lock protocols.
type LockOptions struct {
	Retries    int
	RetryDelay time.Duration
}

// DefaultLockOptions mirrors config.DefaultRuntime's lock tuning.
func DefaultLockOptions() LockOptions {
	return LockOptions{Retries: 10, RetryDelay: 200 * time.Millisecond}
}

// AcquirePlaceholderLock blocks (within the bounded retry budget)
// until it holds the lock for path, or returns an error.
func AcquirePlaceholderLock(path string, opts LockOptions) (*PlaceholderLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	for attempt := 0; ; attempt++ {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &PlaceholderLock{path: path, f: f}, nil
		}
		if err != unix.EWOULDBLOCK {
			break
		}
		if attempt >= opts.Retries {
			f.Close()
			return nil, fmt.Errorf("acquire lock %s after %d attempts: %w", path, opts.Retries+1, err)
		}
		time.Sleep(opts.RetryDelay)
	}
	// flock unavailable; fall back to dot-lock protocol.
	f.Close()
	return acquireDotLock(path, opts)
}

func acquireDotLock(path string, opts LockOptions) (*PlaceholderLock, error) {
	dotPath := path + ".lock"
	tmpPath := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create dot-lock temp %s: %w", tmpPath, err)
	}
	tmp.Close()
	defer os.Remove(tmpPath)

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if err := os.Link(tmpPath, dotPath); err == nil {
			return &PlaceholderLock{path: path, dotLock: true, dotPath: dotPath}, nil
		} else {
			lastErr = err
		}
		if attempt < opts.Retries {
			time.Sleep(opts.RetryDelay)
		}
	}
	return nil, fmt.Errorf("acquire dot-lock %s after %d attempts: %w", dotPath, opts.Retries+1, lastErr)
}

// Release drops the lock, whichever protocol acquired it.
func (l *PlaceholderLock) Release() error {
	if l.dotLock {
		return os.Remove(l.dotPath)
	}
	if l.f != nil {
		defer l.f.Close()
		return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	}
	return nil
}

// lockFilePath is the well-known placeholder-lock path for a class
// directory.
func lockFilePath(classDir string) string {
	return filepath.Join(classDir, ".master.lock")
}
