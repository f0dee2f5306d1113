// Package lock provides per-room mutual exclusion with a bounded acquisition
// wait and an absolute lease expiry, so a crashed holder can never deadlock a
// room for longer than the lease.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when the lock could not be acquired within the
// wait window. It is the only transient error of the coordinator; callers
// should surface it as "another operation is in progress, retry".
var ErrLockTimeout = errors.New("lock: acquisition timed out")

const (
	// DefaultWait bounds how long an operation blocks waiting for the room.
	DefaultWait = 2 * time.Second
	// DefaultLease bounds how long a holder may keep the room. Kept short so
	// a crashed holder self-heals within seconds.
	DefaultLease = 3 * time.Second
)

// Locker serializes all state-mutating operations on one room. fn runs with
// the room held exclusively; the lock is released in all cases.
type Locker interface {
	WithLock(ctx context.Context, roomID int64, fn func() error) error
}
