package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerAcquireAndContention(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	locked, err := l.Lock(ctx, "positions:1", "worker-a", time.Minute)
	if err != nil || !locked {
		t.Fatalf("first acquisition must succeed: locked=%v err=%v", locked, err)
	}

	locked, err = l.Lock(ctx, "positions:1", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if locked {
		t.Error("a held key must not be acquired by another token")
	}

	// A different key is independent
	locked, err = l.Lock(ctx, "positions:2", "worker-b", time.Minute)
	if err != nil || !locked {
		t.Fatalf("independent key must be acquirable: locked=%v err=%v", locked, err)
	}
}

func TestMemoryLockerUnlockIsTokenChecked(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	if _, err := l.Lock(ctx, "positions:1", "worker-a", time.Minute); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// A foreign token must not release the lease
	if err := l.Unlock(ctx, "positions:1", "worker-b"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	locked, err := l.Lock(ctx, "positions:1", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if locked {
		t.Fatal("foreign unlock must leave the lease held")
	}

	// The owner's token releases it
	if err := l.Unlock(ctx, "positions:1", "worker-a"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	locked, err = l.Lock(ctx, "positions:1", "worker-b", time.Minute)
	if err != nil || !locked {
		t.Fatalf("released key must be acquirable: locked=%v err=%v", locked, err)
	}
}

func TestMemoryLockerExpiredLeaseIsReleased(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	current := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return current }

	if _, err := l.Lock(ctx, "positions:1", "worker-a", 5*time.Second); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	current = current.Add(4 * time.Second)
	locked, _ := l.Lock(ctx, "positions:1", "worker-b", 5*time.Second)
	if locked {
		t.Fatal("lease must hold before its ttl elapses")
	}

	current = current.Add(2 * time.Second)
	locked, err := l.Lock(ctx, "positions:1", "worker-b", 5*time.Second)
	if err != nil || !locked {
		t.Fatalf("expired lease must be acquirable: locked=%v err=%v", locked, err)
	}
}

func TestMemoryLockerReacquireAfterExpiryGetsNewToken(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	current := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return current }

	if _, err := l.Lock(ctx, "positions:1", "worker-a", time.Second); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	current = current.Add(2 * time.Second)
	if locked, _ := l.Lock(ctx, "positions:1", "worker-b", time.Minute); !locked {
		t.Fatal("expired lease must be acquirable")
	}

	// The stale holder's unlock must not touch worker-b's lease
	if err := l.Unlock(ctx, "positions:1", "worker-a"); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if locked, _ := l.Lock(ctx, "positions:1", "worker-c", time.Minute); locked {
		t.Fatal("stale unlock must not release the new holder's lease")
	}
}
