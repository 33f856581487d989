package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	token, err := AcquireTableLock(ctx, m, "t1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = AcquireTableLock(ctx, m, "t1")
	assert.ErrorIs(t, err, ErrTableBusy)

	// A different table has its own lock.
	other, err := AcquireTableLock(ctx, m, "t2")
	require.NoError(t, err)
	ReleaseTableLock(ctx, m, "t2", other)

	ReleaseTableLock(ctx, m, "t1", token)
	token2, err := AcquireTableLock(ctx, m, "t1")
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestReleaseWithStaleTokenKeepsLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	token, err := AcquireTableLock(ctx, m, "t1")
	require.NoError(t, err)

	ReleaseTableLock(ctx, m, "t1", "not-the-token")
	_, err = AcquireTableLock(ctx, m, "t1")
	assert.ErrorIs(t, err, ErrTableBusy, "stale release must not free the lock")

	ReleaseTableLock(ctx, m, "t1", token)
}

func TestWithTableLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ran := false
	err := WithTableLock(ctx, m, "t1", func() error {
		ran = true
		_, err := AcquireTableLock(ctx, m, "t1")
		assert.ErrorIs(t, err, ErrTableBusy)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Lock released after fn returns.
	token, err := AcquireTableLock(ctx, m, "t1")
	require.NoError(t, err)
	ReleaseTableLock(ctx, m, "t1", token)
}
