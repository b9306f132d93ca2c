// Package runlock provides the host-wide execution lock that guarantees at
// most one agent run is active at a time. The lock is an OS advisory flock
// on a well-known file, so the kernel releases it automatically when the
// holding process dies; crash recovery needs no manual stale-lock cleanup.
package runlock

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrAlreadyHeld is returned by TryAcquire when another holder exists. It is
// an expected contention signal, not a failure.
var ErrAlreadyHeld = errors.New("execution lock already held")

// Lock is a capability handle on the lock file path. It holds nothing until
// TryAcquire succeeds.
type Lock struct {
	path string
}

// Handle represents a held lock. Release it on every exit path; abnormal
// termination is covered by the OS dropping the flock.
type Handle struct {
	fl *flock.Flock
}

// New returns a Lock for the given file path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// TryAcquire attempts a non-blocking exclusive lock. It returns
// ErrAlreadyHeld when any process (including this one, through another
// descriptor) holds the lock.
func (l *Lock) TryAcquire() (*Handle, error) {
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire execution lock %s: %w", l.path, err)
	}
	if !ok {
		return nil, ErrAlreadyHeld
	}
	return &Handle{fl: fl}, nil
}

// Release drops the lock.
func (h *Handle) Release() error {
	return h.fl.Unlock()
}

// IsHeld probes the lock by acquiring and immediately releasing it. The
// answer is best-effort status only: a run may start the instant after the
// probe. Never use it to make scheduling decisions.
func (l *Lock) IsHeld() bool {
	handle, err := l.TryAcquire()
	if err != nil {
		return errors.Is(err, ErrAlreadyHeld)
	}
	_ = handle.Release()
	return false
}
