package cache

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// entryLock is an inter-process, per-fingerprint exclusive lock backed by
// flock(2) on a "{fingerprint}.lock" file, so two processes sharing the same
// cache directory serialize population of the same entry without any other
// coordination channel.
type entryLock struct {
	f *os.File
}

func acquireEntryLock(path string) (*entryLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cache: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("cache: flock %s: %w", path, err)
	}
	return &entryLock{f: f}, nil
}

func (l *entryLock) release() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	if err != nil {
		return fmt.Errorf("cache: unlock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("cache: close lock file: %w", closeErr)
	}
	return nil
}

// tryLocked reports whether path's lock is currently held by any process,
// without blocking. Eviction uses this to skip entries mid-population.
func tryLocked(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		// Cannot even open the lock file: treat conservatively as locked so
		// eviction does not remove an entry it cannot inspect.
		return true
	}
	defer f.Close()

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		return true
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false
}
