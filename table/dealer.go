package table

import (
	"context"

	"github.com/lazharichir/blackjack/cards"
)

// beginDealerTurn switches phase and stages the stepwise reveal. All
// pending player-turn state dies here.
func (e *Engine) beginDealerTurn(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	m.TurnSeat = 0
	m.clearTurnPendings()
	e.setPhase(m, buf, PhaseDealerTurn)
	m.DealerStep = DealerStepReveal
	m.DealerStepDueTS = e.nowMS() + dealerRevealMS
	m.DealerSeq = 0
	return nil
}

// AdvanceDealer is the ticker hook driving the dealer's hand one step
// per due time: announce, flip the hole card, then draw to the house
// rule and settle.
func (e *Engine) AdvanceDealer(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhaseDealerTurn || m.DealerStepDueTS == 0 || now < m.DealerStepDueTS || m.IsPaused(now) {
		return nil
	}

	switch m.DealerStep {
	case DealerStepReveal:
		e.announce(m, buf, "DEALER REVEALS", ToneDealer, dealerRevealMS, 0)
		m.DealerStep = DealerStepRevealWait
		m.DealerStepDueTS = now

	case DealerStepRevealWait:
		hand, err := e.Repo.LoadHandCards(ctx, tid, m.DealerHandID)
		if err != nil {
			return err
		}
		total, _ := cards.HandValue(hand)
		buf.Emit(m, EvtDealerRevealHole, map[string]any{
			"cards":           hand,
			"total":           total,
			"deal_started_ts": now + dealerAnimDelayMS,
			"deal_seq":        0,
			"deal_gap_ms":     dealerGapMS,
		})
		m.DealerRevealed = true
		m.DealerStep = DealerStepDraw
		m.DealerStepDueTS = now + dealerGapMS

	case DealerStepDraw:
		hand, err := e.Repo.LoadHandCards(ctx, tid, m.DealerHandID)
		if err != nil {
			return err
		}
		total, isSoft := cards.HandValue(hand)

		if total > 21 {
			buf.Emit(m, EvtDealerAction, map[string]any{
				"action": "bust",
				"total":  total,
			})
			if err := e.settleAfterDealer(ctx, tid, m, buf); err != nil {
				return err
			}
			break
		}

		mustDraw := total < 17 || (total == 17 && isSoft && m.DealerRule == "H17")
		if !mustDraw {
			buf.Emit(m, EvtDealerAction, map[string]any{
				"action": "stand",
				"total":  total,
			})
			if err := e.settleAfterDealer(ctx, tid, m, buf); err != nil {
				return err
			}
			break
		}

		card, err := e.draw(ctx, tid, m)
		if err != nil {
			return err
		}
		_, newTotal, _, err := e.appendToHand(ctx, tid, m.DealerHandID, card)
		if err != nil {
			return err
		}
		m.DealerSeq++
		buf.Emit(m, EvtDealerAction, map[string]any{
			"action":          "draw",
			"card":            card,
			"total":           newTotal,
			"deal_started_ts": now + dealerAnimDelayMS,
			"deal_seq":        m.DealerSeq,
			"deal_gap_ms":     dealerGapMS,
		})
		m.DealerStepDueTS = now + dealerGapMS
	}

	return e.saveMeta(ctx, tid, m)
}
