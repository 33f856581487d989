package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id1, err := AppendEvent(ctx, m, "t1", "BET_PLACED", "s1", 1, map[string]any{"seat": 2, "amount": 50})
	require.NoError(t, err)
	id2, err := AppendEvent(ctx, m, "t1", "CARD_DEALT", "s1", 1, map[string]any{"seat": 2, "card": "AS"})
	require.NoError(t, err)

	events, err := ReadEvents(ctx, m, "t1", "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, id1, events[0].ID)
	assert.Equal(t, "BET_PLACED", events[0].Type)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, 1, events[0].RoundID)
	assert.Equal(t, float64(50), events[0].Payload["amount"])
	assert.Equal(t, "AS", events[1].Payload["card"])

	// Resume strictly after id1 yields only the second event.
	events, err = ReadEvents(ctx, m, "t1", id1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id2, events[0].ID)

	events, err = ReadEvents(ctx, m, "t1", id2)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadEventsTailCap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < EventSyncTail+50; i++ {
		_, err := AppendEvent(ctx, m, "t1", "PHASE_CHANGED", "s1", 1, map[string]any{"n": i})
		require.NoError(t, err)
	}

	events, err := ReadEvents(ctx, m, "t1", "")
	require.NoError(t, err)
	require.Len(t, events, EventSyncTail)
	assert.Equal(t, float64(50), events[0].Payload["n"])
}

func TestEventStreamRetention(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < EventStreamMaxLen+10; i++ {
		_, err := AppendEvent(ctx, m, "t1", "ANNOUNCEMENT", "s1", 1, map[string]any{"text": fmt.Sprint(i)})
		require.NoError(t, err)
	}
	entries, err := m.XTail(ctx, keyTableEvents("t1"), EventStreamMaxLen*2)
	require.NoError(t, err)
	assert.Len(t, entries, EventStreamMaxLen)
}
