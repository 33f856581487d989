package table

import (
	"context"
	"fmt"
)

// Player actions.
const (
	ActionHit    = "hit"
	ActionStand  = "stand"
	ActionDouble = "double"
	ActionNext   = "next"
)

// HandleAction applies hit/stand/double for the seat that holds the
// turn, or "next" as a bust acknowledgment.
func (e *Engine) HandleAction(ctx context.Context, tid, pid, action, requestID string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhasePlayerTurns {
		return fmt.Errorf("no active turn")
	}
	now := e.nowMS()
	if m.IsPaused(now) {
		return fmt.Errorf("table is animating, wait a moment")
	}
	if m.PendingAdvanceTS != 0 && now < m.PendingAdvanceTS {
		return fmt.Errorf("waiting for turn resolution")
	}
	if m.PendingBustAnnounceTS != 0 {
		return fmt.Errorf("waiting for bust announcement")
	}
	if m.PendingDoubleDueTS != 0 {
		return fmt.Errorf("double is resolving")
	}

	ok, err := e.dedup(ctx, tid, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	seat, err := e.Repo.SeatForPlayer(ctx, tid, pid)
	if err != nil {
		return err
	}
	if seat == 0 {
		return fmt.Errorf("not seated at this table")
	}

	// Bust acknowledgment: the busted seat must send "next" before the
	// turn moves on.
	if m.PendingAdvanceSeat != 0 && m.PendingAdvanceTS == 0 {
		if seat != m.PendingAdvanceSeat {
			return fmt.Errorf("not your turn")
		}
		if action != ActionNext {
			return fmt.Errorf("hand is over, acknowledge with next")
		}
		m.PendingAdvanceSeat = 0
		if err := e.advanceTurn(ctx, tid, m, buf, players); err != nil {
			return err
		}
		return e.saveMeta(ctx, tid, m)
	}

	if seat != m.TurnSeat {
		return fmt.Errorf("not your turn")
	}
	player, ok := playerAtSeat(players, seat)
	if !ok {
		return fmt.Errorf("not seated at this table")
	}
	handID := firstHandID(e, player)
	if handID == "" {
		return fmt.Errorf("no hand this round")
	}

	acted := func() {
		buf.Emit(m, EvtPlayerAction, map[string]any{
			"player_id": pid,
			"seat":      seat,
			"action":    action,
		})
	}

	switch action {
	case ActionHit:
		acted()
		if err := e.applyHit(ctx, tid, m, buf, player, handID); err != nil {
			return err
		}
	case ActionStand:
		acted()
		if err := e.advanceTurn(ctx, tid, m, buf, players); err != nil {
			return err
		}
	case ActionDouble:
		if err := e.validateDouble(ctx, tid, player, handID); err != nil {
			return err
		}
		acted()
		if err := e.applyDouble(ctx, tid, m, buf, player, handID); err != nil {
			return err
		}
	case ActionNext:
		return fmt.Errorf("nothing to acknowledge")
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return e.saveMeta(ctx, tid, m)
}

func (e *Engine) applyHit(ctx context.Context, tid string, m *Meta, buf *EventBuffer, p seatedPlayer, handID string) error {
	card, err := e.draw(ctx, tid, m)
	if err != nil {
		return err
	}
	hand, total, _, err := e.appendToHand(ctx, tid, handID, card)
	if err != nil {
		return err
	}
	now := e.nowMS()
	buf.Emit(m, EvtCardDealt, map[string]any{
		"to":              "player",
		"player_id":       p.ID,
		"seat":            p.Seat,
		"hand_id":         handID,
		"card":            card,
		"card_index":      len(hand) - 1,
		"deal_seq":        0,
		"deal_started_ts": now + dealGapMS,
		"deal_gap_ms":     dealGapMS,
	})

	if total > 21 {
		e.markBust(m, buf, p, total, now)
	}
	return nil
}

// markBust freezes the turn until the bust banner has played and the
// player acknowledges with "next".
func (e *Engine) markBust(m *Meta, buf *EventBuffer, p seatedPlayer, total int, nowMS int64) {
	m.PendingAdvanceSeat = p.Seat
	m.PendingAdvanceTS = 0
	m.PendingBustSeat = p.Seat
	m.PendingBustPlayerID = p.ID
	m.PendingBustAnnounceTS = nowMS + bustRevealDelayMS
	buf.Emit(m, EvtPlayerBust, map[string]any{
		"seat":          p.Seat,
		"player_id":     p.ID,
		"total":         total,
		"advance_at_ts": 0,
		"requires_ack":  true,
	})
}

func (e *Engine) validateDouble(ctx context.Context, tid string, p seatedPlayer, handID string) error {
	hand, err := e.Repo.LoadHandCards(ctx, tid, handID)
	if err != nil {
		return err
	}
	if len(hand) != 2 {
		return fmt.Errorf("double is only allowed on the first two cards")
	}
	if p.bet() <= 0 {
		return fmt.Errorf("no bet to double")
	}
	if p.bankroll() < p.bet() {
		return fmt.Errorf("insufficient bankroll to double")
	}
	return nil
}

func (e *Engine) applyDouble(ctx context.Context, tid string, m *Meta, buf *EventBuffer, p seatedPlayer, handID string) error {
	bet := p.bet()
	if err := e.Repo.AdjustBankroll(ctx, tid, p.ID, -bet); err != nil {
		return err
	}
	newBet := bet * 2
	if err := e.Repo.SetBet(ctx, tid, p.ID, newBet); err != nil {
		return err
	}
	buf.Emit(m, EvtBetDoubled, map[string]any{
		"player_id": p.ID,
		"seat":      p.Seat,
		"amount":    newBet,
		"added":     bet,
	})
	e.announce(m, buf, upperName(p)+" DOUBLES DOWN", ToneNeutral, doubleAnnounceMS, 0)

	m.PendingDoubleDueTS = e.nowMS() + doubleAnnounceMS
	m.PendingDoubleSeat = p.Seat
	m.PendingDoublePlayerID = p.ID
	m.PendingDoubleHandID = handID
	return nil
}

// AdvanceDoublePending is the ticker hook that draws the single double
// card once the announcement has played.
func (e *Engine) AdvanceDoublePending(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhasePlayerTurns || m.PendingDoubleDueTS == 0 || now < m.PendingDoubleDueTS || m.IsPaused(now) {
		return nil
	}
	seat := m.PendingDoubleSeat
	pid := m.PendingDoublePlayerID
	handID := m.PendingDoubleHandID
	m.PendingDoubleDueTS = 0
	m.PendingDoubleSeat = 0
	m.PendingDoublePlayerID = ""
	m.PendingDoubleHandID = ""

	card, err := e.draw(ctx, tid, m)
	if err != nil {
		return err
	}
	hand, total, _, err := e.appendToHand(ctx, tid, handID, card)
	if err != nil {
		return err
	}
	buf.Emit(m, EvtCardDealt, map[string]any{
		"to":              "player",
		"player_id":       pid,
		"seat":            seat,
		"hand_id":         handID,
		"card":            card,
		"card_index":      len(hand) - 1,
		"deal_seq":        0,
		"deal_started_ts": now + dealGapMS,
		"deal_gap_ms":     dealGapMS,
	})

	if total > 21 {
		e.markBust(m, buf, seatedPlayer{ID: pid, Seat: seat, Data: map[string]string{}}, total, now)
	} else {
		// Doubling ends the turn after one card: schedule the
		// auto-stand once the card animation lands.
		m.PendingAdvanceSeat = seat
		m.PendingAdvanceTS = now + dealGapMS + dealAnimMS
	}
	return e.saveMeta(ctx, tid, m)
}

// AdvanceBustPending is the ticker hook that fires the bust banner
// after the busting card has been revealed.
func (e *Engine) AdvanceBustPending(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhasePlayerTurns || m.PendingBustAnnounceTS == 0 || now < m.PendingBustAnnounceTS || m.IsPaused(now) {
		return nil
	}
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("SEAT %d", m.PendingBustSeat)
	if p, ok := playerAtSeat(players, m.PendingBustSeat); ok {
		name = upperName(p)
	}
	e.announce(m, buf, name+" BUSTS", ToneLoss, bustAnnounceMS, m.PendingBustSeat)
	m.PendingBustAnnounceTS = 0
	m.PendingBustSeat = 0
	m.PendingBustPlayerID = ""
	return e.saveMeta(ctx, tid, m)
}

// AdvancePendingTurn is the ticker hook for scheduled turn advances
// (the auto-stand after a double).
func (e *Engine) AdvancePendingTurn(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhasePlayerTurns || m.PendingAdvanceTS == 0 || now < m.PendingAdvanceTS || m.IsPaused(now) {
		return nil
	}
	m.PendingAdvanceTS = 0
	m.PendingAdvanceSeat = 0
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	if err := e.advanceTurn(ctx, tid, m, buf, players); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// AdvanceInactiveTurn skips a turn holder who has disconnected, so one
// dropped client cannot stall the whole table.
func (e *Engine) AdvanceInactiveTurn(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	now := e.nowMS()
	if m.Phase != PhasePlayerTurns || m.TurnSeat == 0 || m.IsPaused(now) {
		return nil
	}
	if m.PendingAdvanceSeat != 0 || m.PendingAdvanceTS != 0 || m.PendingBustAnnounceTS != 0 || m.PendingDoubleDueTS != 0 {
		return nil
	}
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	holder, ok := playerAtSeat(players, m.TurnSeat)
	if ok && holder.active() {
		return nil
	}
	if err := e.advanceTurn(ctx, tid, m, buf, players); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// advanceTurn hands the turn to the next bettor by seat order, or moves
// to the dealer when no seats remain.
func (e *Engine) advanceTurn(ctx context.Context, tid string, m *Meta, buf *EventBuffer, players []seatedPlayer) error {
	for _, p := range bettors(players) {
		if p.Seat > m.TurnSeat {
			e.startTurn(m, buf, p)
			return nil
		}
	}
	return e.beginDealerTurn(ctx, tid, m, buf)
}
