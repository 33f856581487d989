package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// dealInitial runs the casino deal: one card to every bettor, the
// dealer's up card, every bettor's second card, then the face-down hole
// card. Each CARD_DEALT carries an absolute animation start time and a
// monotonic deal_seq so clients flip cards in lockstep.
func (e *Engine) dealInitial(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	if err := e.ensureShoe(ctx, tid, m); err != nil {
		return err
	}
	if err := e.Repo.ClearHands(ctx, tid); err != nil {
		return err
	}
	m.DealerHandID = ""

	e.setPhase(m, buf, PhaseDealInitial)

	switch e.Cfg.DealerSoft17Mode {
	case "S17", "H17":
		m.DealerRule = e.Cfg.DealerSoft17Mode
	default:
		if e.Rand.Intn(2) == 0 {
			m.DealerRule = "S17"
		} else {
			m.DealerRule = "H17"
		}
	}

	roundPayload := map[string]any{"round_id": m.RoundID}
	if e.Cfg.ShowDealerRule {
		roundPayload["dealer_soft_17_rule"] = m.DealerRule
	}
	buf.Emit(m, EvtRoundStarted, roundPayload)

	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	live := bettors(players)
	if len(live) == 0 {
		if e.Cfg.AutoEndIfNoActiveBettors {
			e.endSession(m, buf, tid, "no active bettors")
			return nil
		}
		// Everyone sat out. Wipe the submitted flags so the next
		// betting window accepts fresh wagers.
		if err := e.Repo.ClearBets(ctx, tid); err != nil {
			return err
		}
		if err := e.Repo.ClearHands(ctx, tid); err != nil {
			return err
		}
		e.setPhase(m, buf, PhaseWaitingForBets)
		m.BetDeadlineTS = 0
		if e.Cfg.BetTimeSeconds > 0 {
			m.BetDeadlineTS = e.nowMS() + int64(e.Cfg.BetTimeSeconds)*1000
		}
		return nil
	}

	now := e.nowMS()
	m.DealStartedTS = now + dealShuffleMS
	buf.Emit(m, EvtDealStarted, map[string]any{"deal_started_ts": m.DealStartedTS})

	handIDs := make(map[string]string, len(live))
	for _, p := range live {
		handID := uuid.NewString()
		handIDs[p.ID] = handID
		if err := e.Repo.SetPlayerHandIDs(ctx, tid, p.ID, []string{handID}); err != nil {
			return err
		}
		if err := e.Repo.SaveHand(ctx, tid, handID, []string{}, 0, false); err != nil {
			return err
		}
	}
	dealerHandID := uuid.NewString()
	m.DealerHandID = dealerHandID
	if err := e.Repo.SaveHand(ctx, tid, dealerHandID, []string{}, 0, false); err != nil {
		return err
	}

	dealSeq := 0
	dealTo := func(p seatedPlayer, cardIndex int) error {
		card, err := e.draw(ctx, tid, m)
		if err != nil {
			return err
		}
		if _, _, _, err := e.appendToHand(ctx, tid, handIDs[p.ID], card); err != nil {
			return err
		}
		buf.Emit(m, EvtCardDealt, map[string]any{
			"to":              "player",
			"player_id":       p.ID,
			"seat":            p.Seat,
			"hand_id":         handIDs[p.ID],
			"card":            card,
			"card_index":      cardIndex,
			"deal_seq":        dealSeq,
			"deal_started_ts": m.DealStartedTS,
			"deal_gap_ms":     dealGapMS,
		})
		dealSeq++
		return nil
	}
	dealToDealer := func(cardIndex int, faceDown bool) error {
		card, err := e.draw(ctx, tid, m)
		if err != nil {
			return err
		}
		if _, _, _, err := e.appendToHand(ctx, tid, dealerHandID, card); err != nil {
			return err
		}
		payload := map[string]any{
			"to":              "dealer",
			"hand_id":         dealerHandID,
			"card_index":      cardIndex,
			"deal_seq":        dealSeq,
			"deal_started_ts": m.DealStartedTS,
			"deal_gap_ms":     dealGapMS,
		}
		if faceDown {
			payload["card"] = nil
			payload["face_down"] = true
		} else {
			payload["card"] = card
		}
		buf.Emit(m, EvtCardDealt, payload)
		dealSeq++
		return nil
	}

	for _, p := range live {
		if err := dealTo(p, 0); err != nil {
			return err
		}
	}
	if err := dealToDealer(0, false); err != nil {
		return err
	}
	for _, p := range live {
		if err := dealTo(p, 1); err != nil {
			return err
		}
	}
	if err := dealToDealer(1, true); err != nil {
		return err
	}

	m.TurnStartDueTS = m.DealStartedTS + int64(dealSeq)*dealGapMS + dealAnimMS
	m.TurnSeat = 0
	e.Log.Debug().
		Str("table_id", tid).
		Int("round_id", m.RoundID).
		Int("bettors", len(live)).
		Str("rule", m.DealerRule).
		Msg("initial deal complete")
	return nil
}

// AdvanceTurnStart is the ticker hook that opens PLAYER_TURNS once the
// deal animation window has elapsed.
func (e *Engine) AdvanceTurnStart(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhaseDealInitial || m.TurnStartDueTS == 0 || now < m.TurnStartDueTS || m.IsPaused(now) {
		return nil
	}
	m.TurnStartDueTS = 0

	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	live := bettors(players)
	if len(live) == 0 {
		// Every bettor vanished mid-deal; the dealer plays out and the
		// round settles with no wagers on the felt.
		if err := e.beginDealerTurn(ctx, tid, m, buf); err != nil {
			return err
		}
		return e.saveMeta(ctx, tid, m)
	}
	e.setPhase(m, buf, PhasePlayerTurns)
	e.startTurn(m, buf, live[0])
	return e.saveMeta(ctx, tid, m)
}

// startTurn hands control to a seat and announces it.
func (e *Engine) startTurn(m *Meta, buf *EventBuffer, p seatedPlayer) {
	m.TurnSeat = p.Seat
	buf.Emit(m, EvtTurnStarted, map[string]any{
		"seat":      p.Seat,
		"player_id": p.ID,
	})
	e.announce(m, buf, upperName(p)+"'S TURN", ToneNeutral, announceDefaultMS, 0)
}

func upperName(p seatedPlayer) string {
	name := p.name()
	if name == "" {
		name = fmt.Sprintf("SEAT %d", p.Seat)
	}
	return strings.ToUpper(name)
}
