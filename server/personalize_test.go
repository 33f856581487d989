package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazharichir/blackjack/config"
	"github.com/lazharichir/blackjack/store"
	"github.com/lazharichir/blackjack/table"
)

func testServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	cfg := config.Load()
	return NewServer(cfg, mem, zerolog.Nop()), mem
}

func decodeWire(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	require.NotNil(t, raw)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestRedactPayloadForStore(t *testing.T) {
	payload := map[string]any{
		"to": "player", "seat": 1, "hand_id": "h1",
		"card": "KH", "card_index": 0,
	}
	redacted := redactPayloadForStore(table.EvtCardDealt, payload)
	assert.Nil(t, redacted["card"])
	assert.Equal(t, true, redacted["face_down"])
	// Original emit payload keeps its card for the live fanout.
	assert.Equal(t, "KH", payload["card"])

	dealer := map[string]any{"to": "dealer", "card": "7S"}
	assert.Equal(t, "7S", redactPayloadForStore(table.EvtCardDealt, dealer)["card"])

	other := map[string]any{"card": "AS"}
	assert.Equal(t, "AS", redactPayloadForStore(table.EvtPayout, other)["card"])
}

func TestPersonalizeEventCardOwnership(t *testing.T) {
	original := map[string]any{
		"to": "player", "seat": 2, "hand_id": "h2",
		"card": "KH", "card_index": 1,
	}
	ev := store.Event{
		ID:        "100-0",
		Type:      table.EvtCardDealt,
		SessionID: "s1",
		RoundID:   1,
		Payload:   redactPayloadForStore(table.EvtCardDealt, original),
	}

	owner := decodeWire(t, personalizeEvent(ev, original, 2))
	ownerPayload := owner["payload"].(map[string]any)
	assert.Equal(t, "KH", ownerPayload["card"])
	assert.NotContains(t, ownerPayload, "face_down")
	assert.Equal(t, "100-0", owner["event_id"])

	spectator := decodeWire(t, personalizeEvent(ev, original, 1))
	spectatorPayload := spectator["payload"].(map[string]any)
	assert.Nil(t, spectatorPayload["card"])
	assert.Equal(t, true, spectatorPayload["face_down"])
}

func TestPersonalizeEventTargetedAnnouncement(t *testing.T) {
	ev := store.Event{
		ID:   "101-0",
		Type: table.EvtAnnouncement,
		Payload: map[string]any{
			"title": "ALICE BUSTS", "variant": "banner",
			"tone": "loss", "duration_ms": 1400, "target_seat": 2,
		},
	}

	assert.Nil(t, personalizeEvent(ev, nil, 1))

	got := decodeWire(t, personalizeEvent(ev, nil, 2))
	payload := got["payload"].(map[string]any)
	assert.Equal(t, "ALICE BUSTS", payload["title"])
	assert.NotContains(t, payload, "target_seat")

	// Untargeted announcements reach every seat.
	open := store.Event{Type: table.EvtAnnouncement, Payload: map[string]any{"title": "GAME BEGIN"}}
	assert.NotNil(t, personalizeEvent(open, nil, 1))
	assert.NotNil(t, personalizeEvent(open, nil, 2))
}

func snapshotFixture(phase table.Phase) map[string]any {
	return map[string]any{
		"table_id": "t1",
		"phase":    string(phase),
		"players": []map[string]any{
			{"player_id": "p1", "seat": 1, "hand": map[string]any{
				"hand_id": "h1", "cards": []any{"AS", "KH"}, "total": 21, "is_soft": true,
			}},
			{"player_id": "p2", "seat": 2, "hand": map[string]any{
				"hand_id": "h2", "cards": []any{"9C", "5D", "4H"}, "total": 18, "is_soft": false,
			}},
		},
	}
}

func snapPlayers(snap map[string]any) []map[string]any {
	return snap["players"].([]map[string]any)
}

func TestPersonalizeSnapshotDuringDeal(t *testing.T) {
	out := personalizeSnapshot(snapshotFixture(table.PhaseDealInitial), 1)
	for _, p := range snapPlayers(out) {
		hand := p["hand"].(map[string]any)
		assert.Empty(t, hand["cards"])
		assert.Equal(t, 0, hand["total"])
	}
}

func TestPersonalizeSnapshotDuringTurns(t *testing.T) {
	out := personalizeSnapshot(snapshotFixture(table.PhasePlayerTurns), 1)
	players := snapPlayers(out)

	own := players[0]["hand"].(map[string]any)
	assert.Equal(t, []any{"AS", "KH"}, own["cards"])
	assert.Equal(t, 21, own["total"])

	other := players[1]["hand"].(map[string]any)
	assert.Equal(t, []any{nil, nil, nil}, other["cards"])
	assert.NotContains(t, other, "total")
}

func TestPersonalizeSnapshotAfterSettle(t *testing.T) {
	for _, phase := range []table.Phase{table.PhaseSettle, table.PhaseVoteContinue, table.PhaseSessionEnded} {
		out := personalizeSnapshot(snapshotFixture(phase), 1)
		other := snapPlayers(out)[1]["hand"].(map[string]any)
		assert.Equal(t, []any{"9C", "5D", "4H"}, other["cards"], string(phase))
	}
}

func TestPersonalizeSnapshotDoesNotMutateSource(t *testing.T) {
	src := snapshotFixture(table.PhasePlayerTurns)
	_ = personalizeSnapshot(src, 1)
	other := snapPlayers(src)[1]["hand"].(map[string]any)
	assert.Equal(t, []any{"9C", "5D", "4H"}, other["cards"])
}

func TestBuildSnapshotListsSeatedPlayers(t *testing.T) {
	s, _ := testServer(t)
	ctx := context.Background()
	tid := "t1"

	_, err := s.repo.EnsureTable(ctx, tid)
	require.NoError(t, err)
	require.NoError(t, s.repo.UpsertPlayer(ctx, tid, "p2", 2, "Bob", "tok2"))
	require.NoError(t, s.repo.UpsertPlayer(ctx, tid, "p1", 1, "Alice", "tok1"))
	require.NoError(t, s.repo.SetReady(ctx, tid, "p1", true))
	require.NoError(t, s.repo.SaveHand(ctx, tid, "h1", []string{"AS", "KH"}, 21, true))
	require.NoError(t, s.repo.SetPlayerHandIDs(ctx, tid, "p1", []string{"h1"}))

	snap, err := s.buildSnapshot(ctx, tid)
	require.NoError(t, err)

	players := snap["players"].([]map[string]any)
	require.Len(t, players, 2)
	assert.Equal(t, "p1", players[0]["player_id"])
	assert.Equal(t, "p2", players[1]["player_id"])
	assert.Equal(t, true, players[0]["ready"])
	assert.Equal(t, false, players[1]["ready"])

	hand := players[0]["hand"].(map[string]any)
	assert.Equal(t, []any{"AS", "KH"}, hand["cards"])
	assert.Equal(t, 21, hand["total"])
	assert.Equal(t, true, hand["is_soft"])
	assert.NotContains(t, players[1], "hand")
}

func TestRePersonalizeStoredEventRecoversOwnCard(t *testing.T) {
	s, _ := testServer(t)
	ctx := context.Background()
	tid := "t1"

	_, err := s.repo.EnsureTable(ctx, tid)
	require.NoError(t, err)
	require.NoError(t, s.repo.SaveHand(ctx, tid, "h1", []string{"AS", "KH"}, 21, true))

	stored := store.Event{
		ID:   "200-0",
		Type: table.EvtCardDealt,
		Payload: map[string]any{
			"to": "player", "seat": float64(1), "hand_id": "h1",
			"card": nil, "face_down": true, "card_index": float64(1),
		},
	}

	owner := decodeWire(t, s.rePersonalizeStoredEvent(ctx, tid, stored, 1))
	payload := owner["payload"].(map[string]any)
	assert.Equal(t, "KH", payload["card"])
	assert.NotContains(t, payload, "face_down")

	other := decodeWire(t, s.rePersonalizeStoredEvent(ctx, tid, stored, 2))
	assert.Nil(t, other["payload"].(map[string]any)["card"])

	// A hand cleared between rounds leaves the replayed card face-down.
	gone := stored
	gone.Payload = copyPayload(stored.Payload)
	gone.Payload["hand_id"] = "missing"
	replay := decodeWire(t, s.rePersonalizeStoredEvent(ctx, tid, gone, 1))
	assert.Nil(t, replay["payload"].(map[string]any)["card"])
	assert.Equal(t, true, replay["payload"].(map[string]any)["face_down"])
}

func TestAppendAndBroadcastPersistsRedactedEvents(t *testing.T) {
	s, mem := testServer(t)
	ctx := context.Background()
	tid := "t1"

	buf := &table.EventBuffer{}
	m := &table.Meta{SessionID: "s1", RoundID: 1}
	buf.Emit(m, table.EvtCardDealt, map[string]any{
		"to": "player", "seat": 1, "hand_id": "h1", "card": "KH", "card_index": 0,
	})
	buf.Emit(m, table.EvtPhaseChanged, map[string]any{"phase": "PLAYER_TURNS"})

	s.appendAndBroadcast(ctx, tid, buf)
	assert.Equal(t, 0, buf.Len())

	events, err := store.ReadEvents(ctx, mem, tid, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, table.EvtCardDealt, events[0].Type)
	assert.Nil(t, events[0].Payload["card"])
	assert.Equal(t, true, events[0].Payload["face_down"])
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, 1, events[0].RoundID)
	assert.Equal(t, table.EvtPhaseChanged, events[1].Type)
}
