// Package lockfile provides advisory, non-blocking per-resource locks
// shared between processes.
//
// A lock is a flock(2) on a small file. The kernel drops it when the
// holder exits, so a crashed process never leaves a lock behind. flock
// locks belong to the open file description: two TryLock calls on the
// same path conflict even inside one process.
package lockfile

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by TryLock when someone else holds the lock.
var ErrHeld = errors.New("lock held")

// Lock is a held lock. Unlock releases it.
type Lock struct {
	fd   int
	path string
}

// TryLock takes the exclusive lock on path, creating the file when
// needed. It never waits: a lock held elsewhere returns ErrHeld.
func TryLock(path string) (*Lock, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock %s: %w", path, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrHeld)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &Lock{fd: fd, path: path}, nil
}

// Held reports whether another holder has the lock on path.
func Held(path string) (bool, error) {
	l, err := TryLock(path)
	if errors.Is(err, ErrHeld) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, l.Unlock()
}

// Path returns the path of the lock file.
func (l *Lock) Path() string { return l.path }

// Unlock releases the lock. The file is left in place.
func (l *Lock) Unlock() error {
	if l == nil || l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return unix.Close(fd)
}

// Name builds a file-name-safe lock name for a resource kind and key,
// e.g. Name("poll", "Main Server") is "poll-Main_Server.lock".
func Name(kind, key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	return kind + "-" + safe + ".lock"
}
