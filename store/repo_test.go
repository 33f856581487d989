package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazharichir/blackjack/config"
)

func testRepo() (*Repo, *Memory) {
	m := NewMemory()
	cfg := config.Settings{
		SeatCount:                 5,
		ShoeDecks:                 6,
		ReshuffleWhenRemainingPct: 0.25,
		StartingBankroll:          1000,
		MinBet:                    10,
		MaxBet:                    200,
		ReconnectGraceSeconds:     300,
	}
	r := NewRepo(m, cfg)
	return r, m
}

func TestEnsureTableDefaults(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()

	meta, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "LOBBY", meta["phase"])
	assert.Equal(t, "0", meta["round_id"])
	assert.Equal(t, "1000", meta["starting_bankroll"])
	assert.Equal(t, "10", meta["min_bet"])
	assert.Equal(t, "200", meta["max_bet"])
	assert.Equal(t, "6", meta["shoe_decks"])
	assert.Equal(t, "0.25", meta["reshuffle_when_remaining_pct"])
	assert.NotEmpty(t, meta["session_id"])
	assert.Equal(t, "", meta["pending_min_bet"])

	tables, err := r.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tables)

	// Second call returns the existing meta untouched.
	require.NoError(t, r.SetMeta(ctx, "t1", map[string]string{"phase": "WAITING_FOR_BETS"}))
	again, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "WAITING_FOR_BETS", again["phase"])
	assert.Equal(t, meta["session_id"], again["session_id"])
}

func TestUpsertPlayerNewAndReturning(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p1", 2, "Ada", "tok-1"))
	p, err := r.GetPlayer(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "1000", p["bankroll"])
	assert.Equal(t, "Ada", p["name"])
	assert.Equal(t, "active", p["status"])
	assert.Equal(t, "[]", p["hand_ids"])

	// Bankroll survives a rejoin, the rest refreshes.
	require.NoError(t, r.AdjustBankroll(ctx, "t1", "p1", -250))
	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p1", 3, "Ada B", "tok-2"))
	p, err = r.GetPlayer(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "750", p["bankroll"])
	assert.Equal(t, "Ada B", p["name"])
	assert.Equal(t, "tok-2", p["reconnect_token"])
	assert.Equal(t, "3", p["seat"])
}

func TestSeatAssignmentAndBinding(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	seat, err := r.AssignSeat(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, seat)

	seat, err = r.AssignSeat(ctx, "t1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, seat)

	got, err := r.SeatForPlayer(ctx, "t1", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	pid, err := r.PlayerIDForSeat(ctx, "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, "p1", pid)

	// Preferred seat binding: taken seat is refused, free one granted.
	seat, err = r.BindSeat(ctx, "t1", "p3", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, seat)

	seat, err = r.BindSeat(ctx, "t1", "p3", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, seat)

	// Re-binding your own seat is a no-op success.
	seat, err = r.BindSeat(ctx, "t1", "p3", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, seat)
}

func TestAssignSeatFullTable(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	r.Cfg.SeatCount = 2
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	_, err = r.AssignSeat(ctx, "t1", "p1")
	require.NoError(t, err)
	_, err = r.AssignSeat(ctx, "t1", "p2")
	require.NoError(t, err)
	_, err = r.AssignSeat(ctx, "t1", "p3")
	assert.Error(t, err)
}

func TestRemovePlayerClearsEverything(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	seat, err := r.AssignSeat(ctx, "t1", "p1")
	require.NoError(t, err)
	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p1", seat, "Ada", "tok-1"))
	require.NoError(t, r.SetReconnectToken(ctx, "tok-1", "p1"))
	require.NoError(t, r.SetReady(ctx, "t1", "p1", true))

	require.NoError(t, r.RemovePlayer(ctx, "t1", "p1"))

	pid, err := r.GetReconnectPID(ctx, "tok-1")
	require.NoError(t, err)
	assert.Empty(t, pid)

	got, err := r.SeatForPlayer(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Zero(t, got)

	ready, err := r.IsReady(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.False(t, ready)

	n, err := r.PlayerCount(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupDisconnected(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	now := time.UnixMilli(1_000_000)
	r.Now = func() time.Time { return now }

	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p1", 1, "Ada", "tok-1"))
	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p2", 2, "Bob", "tok-2"))
	require.NoError(t, r.MarkDisconnected(ctx, "t1", "p1"))

	// Inside the grace window nothing happens.
	now = now.Add(100 * time.Second)
	removed, err := r.CleanupDisconnected(ctx, "t1", 300)
	require.NoError(t, err)
	assert.Zero(t, removed)

	now = now.Add(250 * time.Second)
	removed, err = r.CleanupDisconnected(ctx, "t1", 300)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	players, err := r.GetAllPlayers(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, players, 1)
	assert.Contains(t, players, "p2")
}

func TestMarkRequestDedup(t *testing.T) {
	ctx := context.Background()
	r, m := testRepo()
	now := time.UnixMilli(1_000_000)
	m.Now = func() time.Time { return now }

	first, err := r.MarkRequest(ctx, "t1", "req-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := r.MarkRequest(ctx, "t1", "req-1")
	require.NoError(t, err)
	assert.False(t, second)

	// After the TTL the ID can be reused.
	now = now.Add(121 * time.Second)
	third, err := r.MarkRequest(ctx, "t1", "req-1")
	require.NoError(t, err)
	assert.True(t, third)
}

func TestSnapshotRedactsDealerHoleCard(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, r.SaveHand(ctx, "t1", "dh", []string{"KS", "7H"}, 17, false))
	require.NoError(t, r.SetMeta(ctx, "t1", map[string]string{
		"dealer_hand_id": "dh",
		"phase":          "PLAYER_TURNS",
	}))

	snap, err := r.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, `["KS"]`, snap.DealerHand["cards"])
	assert.Equal(t, "", snap.DealerHand["total"])
	assert.Equal(t, "1", snap.DealerHand["face_down"])

	// DEALER_TURN before the reveal step stays redacted.
	require.NoError(t, r.SetMeta(ctx, "t1", map[string]string{
		"phase":       "DEALER_TURN",
		"dealer_step": "REVEAL",
	}))
	snap, err = r.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "1", snap.DealerHand["face_down"])

	// Once the dealer starts drawing the hand is public.
	require.NoError(t, r.SetMeta(ctx, "t1", map[string]string{"dealer_step": "DRAW"}))
	snap, err = r.GetSnapshot(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, `["KS","7H"]`, snap.DealerHand["cards"])
	assert.Equal(t, "17", snap.DealerHand["total"])

	for _, phase := range []string{"SETTLE", "VOTE_CONTINUE", "SESSION_ENDED"} {
		require.NoError(t, r.SetMeta(ctx, "t1", map[string]string{"phase": phase, "dealer_step": ""}))
		snap, err = r.GetSnapshot(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, `["KS","7H"]`, snap.DealerHand["cards"], phase)
	}
}

func TestClearHandsAndBets(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p1", 1, "Ada", "tok-1"))
	require.NoError(t, r.SetPlayerHandIDs(ctx, "t1", "p1", []string{"h1"}))
	require.NoError(t, r.SaveHand(ctx, "t1", "h1", []string{"AS", "KD"}, 21, true))
	require.NoError(t, r.SaveHand(ctx, "t1", "dh", []string{"9C", "9D"}, 18, false))
	require.NoError(t, r.SetMeta(ctx, "t1", map[string]string{"dealer_hand_id": "dh"}))
	require.NoError(t, r.SetBet(ctx, "t1", "p1", 50))
	require.NoError(t, r.SetBetSubmitted(ctx, "t1", "p1", true))

	require.NoError(t, r.ClearHands(ctx, "t1"))
	require.NoError(t, r.ClearBets(ctx, "t1"))

	p, err := r.GetPlayer(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "[]", p["hand_ids"])
	assert.Equal(t, "0", p["bet"])
	assert.Equal(t, "0", p["bet_submitted"])

	meta, err := r.GetMeta(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, meta["dealer_hand_id"])

	cards, err := r.LoadHandCards(ctx, "t1", "dh")
	require.NoError(t, err)
	assert.Nil(t, cards)
}

func TestClearTableWipesAllKeys(t *testing.T) {
	ctx := context.Background()
	r, m := testRepo()
	_, err := r.EnsureTable(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, r.UpsertPlayer(ctx, "t1", "p1", 1, "Ada", "tok-1"))
	require.NoError(t, r.SetReconnectToken(ctx, "tok-1", "p1"))
	require.NoError(t, r.SaveShoe(ctx, "t1", []string{"AS", "KD"}))
	_, err = AppendEvent(ctx, m, "t1", "PHASE_CHANGED", "s1", 1, map[string]any{"phase": "LOBBY"})
	require.NoError(t, err)

	require.NoError(t, r.ClearTable(ctx, "t1"))

	tables, err := r.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	meta, err := r.GetMeta(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, meta)

	shoe, err := r.LoadShoe(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, shoe)

	events, err := ReadEvents(ctx, m, "t1", "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestVotes(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo()

	require.NoError(t, r.CastVote(ctx, "t1", 3, "p1", "YES"))
	require.NoError(t, r.CastVote(ctx, "t1", 3, "p2", "NO"))
	// Re-voting overwrites.
	require.NoError(t, r.CastVote(ctx, "t1", 3, "p2", "YES"))

	votes, err := r.GetVotes(ctx, "t1", 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p1": "YES", "p2": "YES"}, votes)

	require.NoError(t, r.ClearVotes(ctx, "t1", 3))
	votes, err = r.GetVotes(ctx, "t1", 3)
	require.NoError(t, err)
	assert.Empty(t, votes)
}
