package server

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/lazharichir/blackjack/cards"
	"github.com/lazharichir/blackjack/store"
	"github.com/lazharichir/blackjack/table"
)

// buildSnapshot assembles the full table view with every player hand
// resolved. The result still contains real cards; personalizeSnapshot
// redacts it per viewer before sending.
func (s *Server) buildSnapshot(ctx context.Context, tid string) (map[string]any, error) {
	snap, err := s.repo.GetSnapshot(ctx, tid)
	if err != nil {
		return nil, err
	}
	ready, err := s.repo.ReadyPlayers(ctx, tid)
	if err != nil {
		return nil, err
	}

	players := make([]map[string]any, 0, len(snap.Players))
	for pid, data := range snap.Players {
		seat, _ := strconv.Atoi(data["seat"])
		bankroll, _ := strconv.Atoi(data["bankroll"])
		bet, _ := strconv.Atoi(data["bet"])
		entry := map[string]any{
			"player_id":     pid,
			"seat":          seat,
			"name":          data["name"],
			"bankroll":      bankroll,
			"status":        data["status"],
			"bet":           bet,
			"bet_submitted": data["bet_submitted"] == "1",
			"ready":         ready[pid],
		}
		if handIDs := s.repo.PlayerHandIDs(data); len(handIDs) > 0 {
			hand, err := s.repo.LoadHandCards(ctx, tid, handIDs[0])
			if err != nil {
				return nil, err
			}
			total, isSoft := cards.HandValue(hand)
			entry["hand_count"] = len(handIDs)
			entry["hand"] = map[string]any{
				"hand_id": handIDs[0],
				"cards":   toAnySlice(hand),
				"total":   total,
				"is_soft": isSoft,
			}
		}
		players = append(players, entry)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i]["seat"].(int) < players[j]["seat"].(int)
	})

	out := map[string]any{
		"table_id": tid,
		"phase":    snap.Meta["phase"],
		"meta":     snap.Meta,
		"seats":    snap.Seats,
		"players":  players,
	}
	if len(snap.DealerHand) > 0 {
		var dealerCards []string
		if raw := snap.DealerHand["cards"]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &dealerCards)
		}
		dealer := map[string]any{
			"cards":     toAnySlice(dealerCards),
			"face_down": snap.DealerHand["face_down"] == "1",
		}
		if snap.DealerHand["total"] != "" {
			total, _ := strconv.Atoi(snap.DealerHand["total"])
			dealer["total"] = total
		}
		out["dealer_hand"] = dealer
	}
	return out, nil
}

// personalizeSnapshot copies the snapshot with hand visibility for one
// seat: during the deal, hands are empty (the stream drives the
// animation); during turns, only the viewer's own cards are literal and
// other hands become same-length null lists; from settle onward all
// hands are open.
func personalizeSnapshot(snap map[string]any, viewerSeat int) map[string]any {
	phase, _ := snap["phase"].(string)
	revealAll := phase == string(table.PhaseSettle) ||
		phase == string(table.PhaseVoteContinue) ||
		phase == string(table.PhaseSessionEnded)

	out := make(map[string]any, len(snap))
	for k, v := range snap {
		out[k] = v
	}

	src, _ := snap["players"].([]map[string]any)
	players := make([]map[string]any, 0, len(src))
	for _, p := range src {
		cp := make(map[string]any, len(p))
		for k, v := range p {
			cp[k] = v
		}
		if hand, ok := p["hand"].(map[string]any); ok {
			handCards, _ := hand["cards"].([]any)
			seat, _ := cp["seat"].(int)
			switch {
			case phase == string(table.PhaseDealInitial):
				cp["hand_count"] = 0
				cp["hand"] = map[string]any{
					"hand_id": hand["hand_id"],
					"cards":   []any{},
					"total":   0,
					"is_soft": false,
				}
			case revealAll || seat == viewerSeat:
				// literal cards
			default:
				hidden := make([]any, len(handCards))
				cp["hand"] = map[string]any{
					"hand_id": hand["hand_id"],
					"cards":   hidden,
				}
			}
		}
		players = append(players, cp)
	}
	out["players"] = players
	return out
}

// redactPayloadForStore returns the payload as it may be persisted:
// every player-bound CARD_DEALT loses its card before it ever reaches
// the stream.
func redactPayloadForStore(eventType string, payload map[string]any) map[string]any {
	if eventType != table.EvtCardDealt || payload["to"] != "player" {
		return payload
	}
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	cp["card"] = nil
	cp["face_down"] = true
	return cp
}

// personalizeEvent builds the wire form of a freshly appended event for
// one viewer, reconstructing the literal card for its owner from the
// pre-redaction payload. Returns nil to skip delivery.
func personalizeEvent(ev store.Event, original map[string]any, viewerSeat int) []byte {
	switch ev.Type {
	case table.EvtAnnouncement:
		if target, ok := seatValue(ev.Payload["target_seat"]); ok {
			if target != viewerSeat {
				return nil
			}
			cp := copyPayload(ev.Payload)
			delete(cp, "target_seat")
			ev.Payload = cp
		}
	case table.EvtCardDealt:
		if ev.Payload["to"] == "player" {
			seat, _ := seatValue(ev.Payload["seat"])
			if seat == viewerSeat && original != nil {
				cp := copyPayload(ev.Payload)
				cp["card"] = original["card"]
				delete(cp, "face_down")
				ev.Payload = cp
			}
		}
	}
	return mustJSON(eventWire(ev))
}

// rePersonalizeStoredEvent prepares a replayed (already redacted) event
// for the requesting seat. The owner's card is recovered from the
// persisted hand by (hand_id, card_index); if the hand is gone the card
// stays face-down rather than leaking a blank.
func (s *Server) rePersonalizeStoredEvent(ctx context.Context, tid string, ev store.Event, viewerSeat int) []byte {
	switch ev.Type {
	case table.EvtAnnouncement:
		if target, ok := seatValue(ev.Payload["target_seat"]); ok {
			if target != viewerSeat {
				return nil
			}
			cp := copyPayload(ev.Payload)
			delete(cp, "target_seat")
			ev.Payload = cp
		}
	case table.EvtCardDealt:
		if ev.Payload["to"] != "player" {
			break
		}
		seat, _ := seatValue(ev.Payload["seat"])
		if seat != viewerSeat {
			break
		}
		handID, _ := ev.Payload["hand_id"].(string)
		cardIndex, okIndex := seatValue(ev.Payload["card_index"])
		if handID == "" || !okIndex {
			break
		}
		hand, err := s.repo.LoadHandCards(ctx, tid, handID)
		if err != nil || cardIndex < 0 || cardIndex >= len(hand) {
			break
		}
		cp := copyPayload(ev.Payload)
		cp["card"] = hand[cardIndex]
		delete(cp, "face_down")
		ev.Payload = cp
	}
	return mustJSON(eventWire(ev))
}

// eventWire is the client-facing event shape.
func eventWire(ev store.Event) map[string]any {
	return map[string]any{
		"event_id":   ev.ID,
		"type":       ev.Type,
		"session_id": ev.SessionID,
		"round_id":   ev.RoundID,
		"payload":    ev.Payload,
	}
}

func copyPayload(p map[string]any) map[string]any {
	cp := make(map[string]any, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// seatValue normalizes numeric payload values that may arrive as int
// (fresh emit) or float64 (JSON round-trip).
func seatValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
