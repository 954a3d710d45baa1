package ports

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a lock could not be acquired within the
// backend's configured timeout. Callers surface it as HTTP 423 so the
// provider's redelivery, not an internal retry loop, resolves contention.
var ErrLockTimeout = errors.New("named lock acquire timed out")

// NamedLock serializes critical sections across process boundaries, keyed by
// an arbitrary string. A blocked acquirer polls at a fixed interval and gives
// up after the backend's timeout with ErrLockTimeout.
type NamedLock interface {
	Acquire(ctx context.Context, name string) (Unlocker, error)
}

// Unlocker releases a held lock. Release must happen on every exit path.
type Unlocker interface {
	Unlock(ctx context.Context) error
}
