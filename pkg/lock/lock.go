// Package lock provides the leased mutual-exclusion primitive used to
// guard per-position mutation during forced liquidation. Locks carry a
// TTL so a crashed holder cannot strand them, and release is
// token-checked: unlocking with a token that no longer owns the key is
// a no-op, never a release of a later holder's lease.
package lock

import (
	"context"
	"time"
)

// Locker is a leased lock keyed by string. Lock returns false without
// error when the key is already held; Unlock releases the key only when
// the stored token matches.
type Locker interface {
	Lock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}
