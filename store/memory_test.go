package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetNXAndExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.Now = func() time.Time { return now }

	ok, err := m.SetNX(ctx, "k", "a", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "k", "b", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second SetNX must lose while the key is alive")

	now = now.Add(3 * time.Second)
	ok, err = m.SetNX(ctx, "k", "c", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key should be reclaimable")

	v, found, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c", v)
}

func TestMemoryCompareAndDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "lock", "token-1"))

	ok, err := m.CompareAndDel(ctx, "lock", "token-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, _ := m.Get(ctx, "lock")
	assert.True(t, found, "mismatched delete must not remove the key")

	ok, err = m.CompareAndDel(ctx, "lock", "token-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, _ = m.Get(ctx, "lock")
	assert.False(t, found)
}

func TestMemoryStreamIDsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.UnixMilli(5000)
	m.Now = func() time.Time { return now }

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := m.XAdd(ctx, "s", 0, map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 1; i < len(ids); i++ {
		assert.True(t, streamIDLessOrEqual(ids[i-1], ids[i]))
		assert.NotEqual(t, ids[i-1], ids[i])
	}

	// Clock going backwards must not produce out-of-order IDs.
	now = time.UnixMilli(4000)
	id, err := m.XAdd(ctx, "s", 0, map[string]string{"n": "5"})
	require.NoError(t, err)
	assert.True(t, streamIDLessOrEqual(ids[len(ids)-1], id))
}

func TestMemoryStreamTrim(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 10; i++ {
		_, err := m.XAdd(ctx, "s", 4, map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}
	entries, err := m.XTail(ctx, "s", 100)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "6", entries[0].Fields["n"])
	assert.Equal(t, "9", entries[3].Fields["n"])
}

func TestMemoryXRangeAfterIsExclusive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ids []string
	for i := 0; i < 4; i++ {
		id, err := m.XAdd(ctx, "s", 0, map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := m.XRangeAfter(ctx, "s", ids[1], 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[3], entries[1].ID)

	entries, err = m.XRangeAfter(ctx, "s", ids[3], 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryHashAndSetOps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	v, ok, err := m.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	n, err := m.HIncrBy(ctx, "h", "a", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	require.NoError(t, m.HDel(ctx, "h", "b"))
	_, ok, _ = m.HGet(ctx, "h", "b")
	assert.False(t, ok)

	require.NoError(t, m.SAdd(ctx, "set", "x", "y"))
	members, err := m.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, members)

	card, err := m.SCard(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, int64(2), card)

	require.NoError(t, m.SRem(ctx, "set", "x"))
	isMember, err := m.SIsMember(ctx, "set", "x")
	require.NoError(t, err)
	assert.False(t, isMember)
}
