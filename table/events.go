package table

// Event types appended to the table stream. Payload shapes are built at
// the emit site; the personalization layer only ever inspects
// CARD_DEALT and ANNOUNCEMENT.
const (
	EvtPhaseChanged       = "PHASE_CHANGED"
	EvtSessionStarted     = "SESSION_STARTED"
	EvtSessionEnded       = "SESSION_ENDED"
	EvtPlayerJoined       = "PLAYER_JOINED"
	EvtReadyChanged       = "READY_CHANGED"
	EvtAdminConfigUpdated = "ADMIN_CONFIG_UPDATED"
	EvtRoundStarted       = "ROUND_STARTED"
	EvtDealStarted        = "DEAL_STARTED"
	EvtPlayerAction       = "PLAYER_ACTION"
	EvtBetPlaced          = "BET_PLACED"
	EvtBetDoubled         = "BET_DOUBLED"
	EvtCardDealt          = "CARD_DEALT"
	EvtTurnStarted        = "TURN_STARTED"
	EvtPlayerBust         = "PLAYER_BUST"
	EvtDealerRevealHole   = "DEALER_REVEAL_HOLE"
	EvtDealerAction       = "DEALER_ACTION"
	EvtPayout             = "PAYOUT"
	EvtChipsCollect       = "CHIPS_COLLECT"
	EvtHandsRevealed      = "HANDS_REVEALED"
	EvtVoteStarted        = "VOTE_STARTED"
	EvtVoteCast           = "VOTE_CAST"
	EvtVoteResult         = "VOTE_RESULT"
	EvtAnnouncement       = "ANNOUNCEMENT"
)

// Announcement tones.
const (
	ToneNeutral = "neutral"
	ToneWin     = "win"
	ToneLoss    = "loss"
	ToneDealer  = "dealer"
)

// PendingEvent is an event queued during an operation, stamped with the
// session and round it belongs to at emit time.
type PendingEvent struct {
	Type      string
	SessionID string
	RoundID   int
	Payload   map[string]any
}

// EventBuffer collects events produced while the table lock is held.
// The caller appends and broadcasts them after the lock is released, so
// slow clients never extend the critical section.
type EventBuffer struct {
	events []PendingEvent
}

// Emit queues one event under the meta's current session and round.
func (b *EventBuffer) Emit(m *Meta, eventType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	b.events = append(b.events, PendingEvent{
		Type:      eventType,
		SessionID: m.SessionID,
		RoundID:   m.RoundID,
		Payload:   payload,
	})
}

// Drain returns and clears the queued events.
func (b *EventBuffer) Drain() []PendingEvent {
	out := b.events
	b.events = nil
	return out
}

// Len reports how many events are queued.
func (b *EventBuffer) Len() int { return len(b.events) }
