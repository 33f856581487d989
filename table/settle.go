package table

import (
	"context"
	"math"

	"github.com/lazharichir/blackjack/cards"
)

// Payout reasons.
const (
	ReasonBlackjack       = "BLACKJACK"
	ReasonDealerBlackjack = "DEALER_BLACKJACK"
	ReasonBust            = "BUST"
	ReasonDealerBust      = "DEALER_BUST"
	ReasonWin             = "WIN"
	ReasonLose            = "LOSE"
	ReasonPush            = "PUSH"
)

// settleAfterDealer resolves every live wager against the dealer's
// final hand and emits per-seat payouts and banners. The chip-collect
// and hand-reveal follow-ups run on later ticks.
func (e *Engine) settleAfterDealer(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	m.DealerStep = ""
	m.DealerStepDueTS = 0
	m.DealerRevealed = true
	e.setPhase(m, buf, PhaseSettle)
	m.SettlePending = true
	m.SettleCollectStarted = false

	dealerHand, err := e.Repo.LoadHandCards(ctx, tid, m.DealerHandID)
	if err != nil {
		return err
	}
	dealerTotal, _ := cards.HandValue(dealerHand)
	dealerBlackjack := cards.IsBlackjack(dealerHand)
	dealerBust := dealerTotal > 21

	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	for _, p := range bettors(players) {
		handID := firstHandID(e, p)
		if handID == "" {
			continue
		}
		hand, err := e.Repo.LoadHandCards(ctx, tid, handID)
		if err != nil {
			return err
		}
		total, _ := cards.HandValue(hand)
		bet := p.bet()

		payout, reason := resolveWager(bet, total, cards.IsBlackjack(hand), dealerTotal, dealerBlackjack, dealerBust, e.Cfg.BlackjackPayout)
		if payout > 0 {
			if err := e.Repo.AdjustBankroll(ctx, tid, p.ID, payout); err != nil {
				return err
			}
		}
		delta := payout - bet
		buf.Emit(m, EvtPayout, map[string]any{
			"player_id": p.ID,
			"seat":      p.Seat,
			"delta":     delta,
			"reason":    reason,
		})
		e.announceOutcome(m, buf, p, reason)
	}
	return nil
}

// resolveWager returns the amount returned to the player (stake
// included) and the reason code.
func resolveWager(bet, total int, blackjack bool, dealerTotal int, dealerBlackjack, dealerBust bool, payoutMult float64) (int, string) {
	switch {
	case blackjack && !dealerBlackjack:
		return bet + int(math.Ceil(float64(bet)*payoutMult)), ReasonBlackjack
	case dealerBlackjack && !blackjack:
		return 0, ReasonDealerBlackjack
	case total > 21:
		return 0, ReasonBust
	case dealerBust:
		return 2 * bet, ReasonDealerBust
	case total > dealerTotal:
		return 2 * bet, ReasonWin
	case total < dealerTotal:
		return 0, ReasonLose
	default:
		return bet, ReasonPush
	}
}

func (e *Engine) announceOutcome(m *Meta, buf *EventBuffer, p seatedPlayer, reason string) {
	name := upperName(p)
	switch reason {
	case ReasonBlackjack, ReasonDealerBust, ReasonWin:
		e.announce(m, buf, name+" WINS", ToneWin, announceDefaultMS, 0)
	case ReasonPush:
		e.announce(m, buf, name+" PUSHES", ToneNeutral, announceDefaultMS, 0)
	case ReasonBust:
		e.announce(m, buf, name+" BUSTS", ToneLoss, announceDefaultMS, 0)
	default:
		e.announce(m, buf, name+" LOSES", ToneLoss, announceDefaultMS, 0)
	}
}

// AdvanceSettle is the two-step ticker hook after settlement: collect
// chips, then reveal all hands and open the continue vote.
func (e *Engine) AdvanceSettle(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhaseSettle || !m.SettlePending || m.IsPaused(now) {
		return nil
	}

	if !m.SettleCollectStarted {
		buf.Emit(m, EvtChipsCollect, map[string]any{"duration_ms": chipsCollectMS})
		m.PauseFor(now + chipsCollectMS)
		m.SettleCollectStarted = true
		return e.saveMeta(ctx, tid, m)
	}

	// Full reveal before hands are cleared.
	dealerHand, err := e.Repo.LoadHandCards(ctx, tid, m.DealerHandID)
	if err != nil {
		return err
	}
	dealerTotal, _ := cards.HandValue(dealerHand)
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	revealed := make([]map[string]any, 0, len(players))
	for _, p := range bettors(players) {
		handID := firstHandID(e, p)
		if handID == "" {
			continue
		}
		hand, err := e.Repo.LoadHandCards(ctx, tid, handID)
		if err != nil {
			return err
		}
		revealed = append(revealed, map[string]any{
			"seat":  p.Seat,
			"cards": hand,
		})
	}
	buf.Emit(m, EvtHandsRevealed, map[string]any{
		"dealer": map[string]any{
			"cards": dealerHand,
			"total": dealerTotal,
		},
		"players": revealed,
	})

	if err := e.Repo.ClearHands(ctx, tid); err != nil {
		return err
	}
	if err := e.Repo.ClearBets(ctx, tid); err != nil {
		return err
	}
	m.DealerHandID = ""
	m.SettlePending = false
	m.SettleCollectStarted = false

	e.setPhase(m, buf, PhaseVoteContinue)
	m.VoteDeadlineTS = now + int64(e.Cfg.VoteTimeSeconds)*1000
	buf.Emit(m, EvtVoteStarted, map[string]any{"deadline_ts": m.VoteDeadlineTS})
	return e.saveMeta(ctx, tid, m)
}
