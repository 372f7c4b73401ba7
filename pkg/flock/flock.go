// Package flock provides an advisory exclusive lock on a file, shared by all
// processes on the system.
package flock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock is held by another process")

// DefaultDischargeLock is the system-wide discharge lock.
const DefaultDischargeLock = "/run/thinkbatt/discharge.lock"

// Lock is an exclusive flock(2) lock. The zero value is not usable, use New.
type Lock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New returns an unlocked Lock on path. The file is created on first use.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Lock blocks until the lock is acquired.
func (l *Lock) Lock() error {
	return l.acquire(unix.LOCK_EX)
}

// TryLock acquires the lock without waiting. It returns ErrLocked if the
// lock is held elsewhere, including by another Lock in this process.
func (l *Lock) TryLock() error {
	return l.acquire(unix.LOCK_EX | unix.LOCK_NB)
}

func (l *Lock) acquire(how int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return ErrLocked
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create lock directory for %s", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open lock file %s", l.path)
	}

	for {
		err = unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrLocked
		}
		return pkgerrors.Wrapf(err, "failed to lock %s", l.path)
	}

	l.file = f
	logrus.WithField("path", l.path).Trace("lock acquired")
	return nil
}

// Unlock releases the lock. Unlocking an unlocked Lock is a no-op.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unlock %s", l.path)
	}
	if closeErr != nil {
		return pkgerrors.Wrapf(closeErr, "failed to close lock file %s", l.path)
	}

	logrus.WithField("path", l.path).Trace("lock released")
	return nil
}

// Held reports whether this Lock currently holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}
