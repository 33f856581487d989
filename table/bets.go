package table

import (
	"context"
	"fmt"
)

// HandlePlaceBet applies a player's wager for the current round. The
// first bet wins; re-submissions and duplicate request ids are dropped
// silently. amount == 0 is an explicit sit-out.
func (e *Engine) HandlePlaceBet(ctx context.Context, tid, pid string, amount int, requestID string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseWaitingForBets {
		return fmt.Errorf("not accepting bets")
	}

	ok, err := e.dedup(ctx, tid, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	now := e.nowMS()
	if m.BetDeadlineTS != 0 && now >= m.BetDeadlineTS {
		// Deadline already passed: the late bet is dropped and the
		// round is forced forward. Not an error, so the deal's events
		// still flush to the stream and the caller gets the fresh
		// snapshot.
		if err := e.finalizeBetsAndDeal(ctx, tid, m, buf); err != nil {
			return err
		}
		return e.saveMeta(ctx, tid, m)
	}

	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	var player seatedPlayer
	found := false
	for _, p := range players {
		if p.ID == pid {
			player = p
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("not seated at this table")
	}
	if player.betSubmitted() {
		return nil
	}

	if amount != 0 && (amount < m.MinBet || amount > m.MaxBet) {
		return fmt.Errorf("bet must be between %d and %d, or 0 to sit out", m.MinBet, m.MaxBet)
	}
	if amount > player.bankroll() {
		return fmt.Errorf("insufficient bankroll")
	}

	if amount > 0 {
		if err := e.Repo.AdjustBankroll(ctx, tid, pid, -amount); err != nil {
			return err
		}
	}
	if err := e.Repo.SetBet(ctx, tid, pid, amount); err != nil {
		return err
	}
	if err := e.Repo.SetBetSubmitted(ctx, tid, pid, true); err != nil {
		return err
	}

	buf.Emit(m, EvtBetPlaced, map[string]any{
		"player_id": pid,
		"seat":      player.Seat,
		"amount":    amount,
	})

	if err := e.maybeAdvanceAfterBets(ctx, tid, m, buf); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// maybeAdvanceAfterBets schedules the deal once every eligible player
// has submitted. The short pause lets chip animations land before the
// shuffle starts.
func (e *Engine) maybeAdvanceAfterBets(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	eligible := eligibleForBetting(players, m.MinBet)
	if len(eligible) == 0 {
		return nil
	}
	for _, p := range eligible {
		if !p.betSubmitted() {
			return nil
		}
	}
	m.PauseFor(e.nowMS() + betToDealPauseMS)
	m.DealPending = true
	return nil
}

// AdvanceBetDeadline is the ticker hook: once bet_deadline_ts passes
// with bets outstanding, force the round forward.
func (e *Engine) AdvanceBetDeadline(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseWaitingForBets || m.BetDeadlineTS == 0 || e.nowMS() < m.BetDeadlineTS {
		return nil
	}
	if err := e.finalizeBetsAndDeal(ctx, tid, m, buf); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// AdvanceDealPending is the ticker hook for the all-bets-in path: the
// deal fires once the chip-collect pause has drained.
func (e *Engine) AdvanceDealPending(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseWaitingForBets || !m.DealPending || m.IsPaused(e.nowMS()) {
		return nil
	}
	m.DealPending = false
	if err := e.dealInitial(ctx, tid, m, buf); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// finalizeBetsAndDeal resolves non-submitters per no_bet_behavior and
// deals immediately.
func (e *Engine) finalizeBetsAndDeal(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	for _, p := range players {
		if !p.active() || p.betSubmitted() {
			continue
		}
		amount := 0
		if e.Cfg.NoBetBehavior == "AUTO_MIN_BET" && p.bankroll() >= m.MinBet {
			amount = m.MinBet
			if err := e.Repo.AdjustBankroll(ctx, tid, p.ID, -amount); err != nil {
				return err
			}
		}
		if err := e.Repo.SetBet(ctx, tid, p.ID, amount); err != nil {
			return err
		}
		if err := e.Repo.SetBetSubmitted(ctx, tid, p.ID, true); err != nil {
			return err
		}
		if amount > 0 {
			buf.Emit(m, EvtBetPlaced, map[string]any{
				"player_id": p.ID,
				"seat":      p.Seat,
				"amount":    amount,
				"auto":      true,
			})
		}
	}
	m.BetDeadlineTS = 0
	m.DealPending = false
	return e.dealInitial(ctx, tid, m, buf)
}
