package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTableBusy is returned when the per-table lock is already held.
// Callers propagate it; there are no internal retries.
var ErrTableBusy = errors.New("table is busy, try again")

const lockTTL = 5000 * time.Millisecond

// AcquireTableLock takes the keyed exclusive lock for a table. The
// returned token must be passed back to ReleaseTableLock.
func AcquireTableLock(ctx context.Context, b Backend, tid string) (string, error) {
	token := uuid.NewString()
	ok, err := b.SetNX(ctx, keyTableLock(tid), token, lockTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrTableBusy
	}
	return token, nil
}

// ReleaseTableLock releases the lock only if token still holds it, so
// a lock that expired and was re-acquired elsewhere is left alone.
func ReleaseTableLock(ctx context.Context, b Backend, tid, token string) {
	// Best effort: a failed release just lets the TTL do its job.
	_, _ = b.CompareAndDel(ctx, keyTableLock(tid), token)
}

// WithTableLock runs fn while holding the table lock.
func WithTableLock(ctx context.Context, b Backend, tid string, fn func() error) error {
	token, err := AcquireTableLock(ctx, b, tid)
	if err != nil {
		return err
	}
	defer ReleaseTableLock(ctx, b, tid, token)
	return fn()
}
