// Package lock prevents two reconciliation cycles from running against the
// same mirror root at once.
//
// The engine itself assumes it is the only writer of its root; callers
// acquire a [Locker] around each cycle. [FileLocker] guards a single host
// with an exclusive lock file in the mirror root, [RedisLocker] guards a
// fleet sharing a network volume, and [Noop] disables locking.
//
//	release, err := locker.Acquire(ctx)
//	if errors.Is(err, lock.ErrLocked) {
//	    // another cycle is running
//	}
//	defer release()
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned when the lock is held by someone else.
var ErrLocked = errors.New("mirror is locked by another cycle")

// Release gives up a held lock.
type Release func() error

// Locker acquires an exclusive lock without waiting.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// Info describes the holder of a lock.
type Info struct {
	Token      string    `json:"token"`
	Host       string    `json:"host"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Noop is a Locker that always succeeds.
type Noop struct{}

// Acquire implements [Locker].
func (Noop) Acquire(context.Context) (Release, error) {
	return func() error { return nil }, nil
}
