package table

import (
	"context"
	"strconv"
)

// Phase is the table lifecycle state. It fully determines which
// operations are permitted.
type Phase string

const (
	PhaseLobby          Phase = "LOBBY"
	PhaseWaitingForBets Phase = "WAITING_FOR_BETS"
	PhaseDealInitial    Phase = "DEAL_INITIAL"
	PhasePlayerTurns    Phase = "PLAYER_TURNS"
	PhaseDealerTurn     Phase = "DEALER_TURN"
	PhaseSettle         Phase = "SETTLE"
	PhaseVoteContinue   Phase = "VOTE_CONTINUE"
	PhaseSessionEnded   Phase = "SESSION_ENDED"
)

// Dealer turn sub-steps.
const (
	DealerStepReveal     = "REVEAL"
	DealerStepRevealWait = "REVEAL_WAIT"
	DealerStepDraw       = "DRAW"
)

// Animation cadence, in milliseconds. Clients schedule card flips and
// chip movement off these values, so they ride along in event payloads.
const (
	dealGapMS         int64 = 320
	dealAnimMS        int64 = 560
	dealShuffleMS     int64 = 1500
	dealerGapMS       int64 = 800
	dealerRevealMS    int64 = 1000
	dealerAnimDelayMS int64 = 150
	betToDealPauseMS  int64 = 900
	chipsCollectMS    int64 = 700
	announceDefaultMS int64 = 3000
	doubleAnnounceMS  int64 = 1000
	bustAnnounceMS    int64 = 1400
	bustRevealDelayMS       = dealGapMS + dealAnimMS
)

// Meta is the typed view of the table meta hash. Operations parse it
// once at entry, mutate it, and write the whole record back before the
// lock is released.
type Meta struct {
	Phase     Phase
	SessionID string
	RoundID   int
	TurnSeat  int

	DealerHandID    string
	DealerRule      string // S17 or H17, picked per round
	DealerRevealed  bool
	DealerStep      string
	DealerStepDueTS int64
	DealerSeq       int

	BetDeadlineTS  int64
	VoteDeadlineTS int64

	PendingAdvanceTS      int64
	PendingAdvanceSeat    int
	PendingBustAnnounceTS int64
	PendingBustSeat       int
	PendingBustPlayerID   string
	PendingDoubleDueTS    int64
	PendingDoubleSeat     int
	PendingDoublePlayerID string
	PendingDoubleHandID   string

	PauseUntilTS   int64
	DealPending    bool
	DealStartedTS  int64
	TurnStartDueTS int64

	SettlePending        bool
	SettleCollectStarted bool

	SessionStartedTS int64

	StartingBankroll          int
	MinBet                    int
	MaxBet                    int
	ShoeDecks                 int
	ReshuffleWhenRemainingPct float64
	ReconnectGraceSeconds     int

	// Admin config staged for the next round boundary. Empty string
	// means "not staged".
	PendingStartingBankroll          string
	PendingMinBet                    string
	PendingMaxBet                    string
	PendingShoeDecks                 string
	PendingReshuffleWhenRemainingPct string
}

// ParseMeta decodes the raw meta hash. Missing or malformed fields fall
// back to zero values.
func ParseMeta(raw map[string]string) *Meta {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(raw[k])
		return n
	}
	atol := func(k string) int64 {
		n, _ := strconv.ParseInt(raw[k], 10, 64)
		return n
	}
	atob := func(k string) bool { return raw[k] == "1" }
	atof := func(k string) float64 {
		f, _ := strconv.ParseFloat(raw[k], 64)
		return f
	}

	return &Meta{
		Phase:     Phase(raw["phase"]),
		SessionID: raw["session_id"],
		RoundID:   atoi("round_id"),
		TurnSeat:  atoi("turn_seat"),

		DealerHandID:    raw["dealer_hand_id"],
		DealerRule:      raw["dealer_soft_17_rule"],
		DealerRevealed:  atob("dealer_revealed"),
		DealerStep:      raw["dealer_step"],
		DealerStepDueTS: atol("dealer_step_due_ts"),
		DealerSeq:       atoi("dealer_seq"),

		BetDeadlineTS:  atol("bet_deadline_ts"),
		VoteDeadlineTS: atol("vote_deadline_ts"),

		PendingAdvanceTS:      atol("pending_advance_ts"),
		PendingAdvanceSeat:    atoi("pending_advance_seat"),
		PendingBustAnnounceTS: atol("pending_bust_announce_ts"),
		PendingBustSeat:       atoi("pending_bust_seat"),
		PendingBustPlayerID:   raw["pending_bust_player_id"],
		PendingDoubleDueTS:    atol("pending_double_due_ts"),
		PendingDoubleSeat:     atoi("pending_double_seat"),
		PendingDoublePlayerID: raw["pending_double_player_id"],
		PendingDoubleHandID:   raw["pending_double_hand_id"],

		PauseUntilTS:   atol("pause_until_ts"),
		DealPending:    atob("deal_pending"),
		DealStartedTS:  atol("deal_started_ts"),
		TurnStartDueTS: atol("turn_start_due_ts"),

		SettlePending:        atob("settle_pending"),
		SettleCollectStarted: atob("settle_collect_started"),

		SessionStartedTS: atol("session_started_ts"),

		StartingBankroll:          atoi("starting_bankroll"),
		MinBet:                    atoi("min_bet"),
		MaxBet:                    atoi("max_bet"),
		ShoeDecks:                 atoi("shoe_decks"),
		ReshuffleWhenRemainingPct: atof("reshuffle_when_remaining_pct"),
		ReconnectGraceSeconds:     atoi("reconnect_grace_seconds"),

		PendingStartingBankroll:          raw["pending_starting_bankroll"],
		PendingMinBet:                    raw["pending_min_bet"],
		PendingMaxBet:                    raw["pending_max_bet"],
		PendingShoeDecks:                 raw["pending_shoe_decks"],
		PendingReshuffleWhenRemainingPct: raw["pending_reshuffle_when_remaining_pct"],
	}
}

// Fields encodes the record back into the meta hash representation.
func (m *Meta) Fields() map[string]string {
	b := func(v bool) string {
		if v {
			return "1"
		}
		return "0"
	}
	return map[string]string{
		"phase":      string(m.Phase),
		"session_id": m.SessionID,
		"round_id":   strconv.Itoa(m.RoundID),
		"turn_seat":  strconv.Itoa(m.TurnSeat),

		"dealer_hand_id":      m.DealerHandID,
		"dealer_soft_17_rule": m.DealerRule,
		"dealer_revealed":     b(m.DealerRevealed),
		"dealer_step":         m.DealerStep,
		"dealer_step_due_ts":  strconv.FormatInt(m.DealerStepDueTS, 10),
		"dealer_seq":          strconv.Itoa(m.DealerSeq),

		"bet_deadline_ts":  strconv.FormatInt(m.BetDeadlineTS, 10),
		"vote_deadline_ts": strconv.FormatInt(m.VoteDeadlineTS, 10),

		"pending_advance_ts":       strconv.FormatInt(m.PendingAdvanceTS, 10),
		"pending_advance_seat":     strconv.Itoa(m.PendingAdvanceSeat),
		"pending_bust_announce_ts": strconv.FormatInt(m.PendingBustAnnounceTS, 10),
		"pending_bust_seat":        strconv.Itoa(m.PendingBustSeat),
		"pending_bust_player_id":   m.PendingBustPlayerID,
		"pending_double_due_ts":    strconv.FormatInt(m.PendingDoubleDueTS, 10),
		"pending_double_seat":      strconv.Itoa(m.PendingDoubleSeat),
		"pending_double_player_id": m.PendingDoublePlayerID,
		"pending_double_hand_id":   m.PendingDoubleHandID,

		"pause_until_ts":    strconv.FormatInt(m.PauseUntilTS, 10),
		"deal_pending":      b(m.DealPending),
		"deal_started_ts":   strconv.FormatInt(m.DealStartedTS, 10),
		"turn_start_due_ts": strconv.FormatInt(m.TurnStartDueTS, 10),

		"settle_pending":         b(m.SettlePending),
		"settle_collect_started": b(m.SettleCollectStarted),

		"session_started_ts": strconv.FormatInt(m.SessionStartedTS, 10),

		"starting_bankroll":            strconv.Itoa(m.StartingBankroll),
		"min_bet":                      strconv.Itoa(m.MinBet),
		"max_bet":                      strconv.Itoa(m.MaxBet),
		"shoe_decks":                   strconv.Itoa(m.ShoeDecks),
		"reshuffle_when_remaining_pct": strconv.FormatFloat(m.ReshuffleWhenRemainingPct, 'g', -1, 64),
		"reconnect_grace_seconds":      strconv.Itoa(m.ReconnectGraceSeconds),

		"pending_starting_bankroll":            m.PendingStartingBankroll,
		"pending_min_bet":                      m.PendingMinBet,
		"pending_max_bet":                      m.PendingMaxBet,
		"pending_shoe_decks":                   m.PendingShoeDecks,
		"pending_reshuffle_when_remaining_pct": m.PendingReshuffleWhenRemainingPct,
	}
}

// IsPaused reports whether an animation pause is still running.
func (m *Meta) IsPaused(nowMS int64) bool {
	return m.PauseUntilTS != 0 && nowMS < m.PauseUntilTS
}

// PauseFor extends the animation pause. Pauses only ever grow.
func (m *Meta) PauseFor(untilMS int64) {
	if untilMS > m.PauseUntilTS {
		m.PauseUntilTS = untilMS
	}
}

// clearTurnPendings wipes every PLAYER_TURNS sub-state field.
func (m *Meta) clearTurnPendings() {
	m.PendingAdvanceTS = 0
	m.PendingAdvanceSeat = 0
	m.PendingBustAnnounceTS = 0
	m.PendingBustSeat = 0
	m.PendingBustPlayerID = ""
	m.PendingDoubleDueTS = 0
	m.PendingDoubleSeat = 0
	m.PendingDoublePlayerID = ""
	m.PendingDoubleHandID = ""
}

// applyPendingConfig promotes staged admin config at a round boundary.
func (m *Meta) applyPendingConfig() {
	if m.PendingStartingBankroll != "" {
		if n, err := strconv.Atoi(m.PendingStartingBankroll); err == nil {
			m.StartingBankroll = n
		}
		m.PendingStartingBankroll = ""
	}
	if m.PendingMinBet != "" {
		if n, err := strconv.Atoi(m.PendingMinBet); err == nil {
			m.MinBet = n
		}
		m.PendingMinBet = ""
	}
	if m.PendingMaxBet != "" {
		if n, err := strconv.Atoi(m.PendingMaxBet); err == nil {
			m.MaxBet = n
		}
		m.PendingMaxBet = ""
	}
	if m.PendingShoeDecks != "" {
		if n, err := strconv.Atoi(m.PendingShoeDecks); err == nil {
			m.ShoeDecks = n
		}
		m.PendingShoeDecks = ""
	}
	if m.PendingReshuffleWhenRemainingPct != "" {
		if f, err := strconv.ParseFloat(m.PendingReshuffleWhenRemainingPct, 64); err == nil {
			m.ReshuffleWhenRemainingPct = f
		}
		m.PendingReshuffleWhenRemainingPct = ""
	}
}

// loadMeta reads and parses the table meta under the caller's lock.
func (e *Engine) loadMeta(ctx context.Context, tid string) (*Meta, error) {
	raw, err := e.Repo.GetMeta(ctx, tid)
	if err != nil {
		return nil, err
	}
	return ParseMeta(raw), nil
}

// saveMeta writes the full record back.
func (e *Engine) saveMeta(ctx context.Context, tid string, m *Meta) error {
	return e.Repo.SetMeta(ctx, tid, m.Fields())
}
