package table

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lazharichir/blackjack/cards"
	"github.com/lazharichir/blackjack/config"
	"github.com/lazharichir/blackjack/store"
)

// Engine drives the round state machine. Every exported method assumes
// the caller holds the table lock; methods mutate store state and queue
// events on the supplied buffer, which the caller flushes after unlock.
type Engine struct {
	Repo *store.Repo
	Cfg  config.Settings
	Log  zerolog.Logger

	// Now and Rand are injectable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// NewEngine builds an engine with a wall clock and seeded shuffler.
func NewEngine(repo *store.Repo, cfg config.Settings, log zerolog.Logger) *Engine {
	return &Engine{
		Repo: repo,
		Cfg:  cfg,
		Log:  log,
		Now:  time.Now,
		Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Engine) nowMS() int64 { return e.Now().UnixMilli() }

// seatedPlayer pairs a player id with its parsed seat and raw hash.
type seatedPlayer struct {
	ID   string
	Seat int
	Data map[string]string
}

func (p seatedPlayer) bankroll() int {
	n, _ := strconv.Atoi(p.Data["bankroll"])
	return n
}

func (p seatedPlayer) bet() int {
	n, _ := strconv.Atoi(p.Data["bet"])
	return n
}

func (p seatedPlayer) betSubmitted() bool { return p.Data["bet_submitted"] == "1" }
func (p seatedPlayer) active() bool       { return p.Data["status"] == "active" }
func (p seatedPlayer) name() string       { return p.Data["name"] }

// seatedPlayers returns every seated player ordered by seat.
func (e *Engine) seatedPlayers(ctx context.Context, tid string) ([]seatedPlayer, error) {
	all, err := e.Repo.GetAllPlayers(ctx, tid)
	if err != nil {
		return nil, err
	}
	out := make([]seatedPlayer, 0, len(all))
	for pid, data := range all {
		seat, _ := strconv.Atoi(data["seat"])
		if seat <= 0 {
			continue
		}
		out = append(out, seatedPlayer{ID: pid, Seat: seat, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out, nil
}

// bettors are the seated players with a live wager this round.
func bettors(players []seatedPlayer) []seatedPlayer {
	out := make([]seatedPlayer, 0, len(players))
	for _, p := range players {
		if p.betSubmitted() && p.bet() > 0 {
			out = append(out, p)
		}
	}
	return out
}

// eligibleForBetting reports who is expected to submit a bet: active
// players who can cover the table minimum.
func eligibleForBetting(players []seatedPlayer, minBet int) []seatedPlayer {
	out := make([]seatedPlayer, 0, len(players))
	for _, p := range players {
		if p.active() && p.bankroll() >= minBet {
			out = append(out, p)
		}
	}
	return out
}

func playerAtSeat(players []seatedPlayer, seat int) (seatedPlayer, bool) {
	for _, p := range players {
		if p.Seat == seat {
			return p, true
		}
	}
	return seatedPlayer{}, false
}

// announce queues an ANNOUNCEMENT and pauses the table for its
// duration. targetSeat > 0 makes the banner private to that seat.
func (e *Engine) announce(m *Meta, buf *EventBuffer, title, tone string, durationMS int64, targetSeat int) {
	payload := map[string]any{
		"title":       title,
		"variant":     "banner",
		"tone":        tone,
		"duration_ms": durationMS,
	}
	if targetSeat > 0 {
		payload["target_seat"] = targetSeat
	}
	buf.Emit(m, EvtAnnouncement, payload)
	m.PauseFor(e.nowMS() + durationMS)
}

func (e *Engine) setPhase(m *Meta, buf *EventBuffer, phase Phase) {
	m.Phase = phase
	buf.Emit(m, EvtPhaseChanged, map[string]any{"phase": string(phase)})
}

// endSession moves the table to its terminal phase. The connection
// layer destroys the table when it next observes SESSION_ENDED.
func (e *Engine) endSession(m *Meta, buf *EventBuffer, tid, reason string) {
	buf.Emit(m, EvtSessionEnded, map[string]any{"table_id": tid, "reason": reason})
	e.setPhase(m, buf, PhaseSessionEnded)
	e.Log.Info().Str("table_id", tid).Str("session_id", m.SessionID).Str("reason", reason).Msg("session ended")
}

// ensureShoe replaces the shoe with a fresh shuffle when it is empty or
// past the cut card.
func (e *Engine) ensureShoe(ctx context.Context, tid string, m *Meta) error {
	shoe, err := e.Repo.LoadShoe(ctx, tid)
	if err != nil {
		return err
	}
	shoeMeta, err := e.Repo.GetShoeMeta(ctx, tid)
	if err != nil {
		return err
	}
	cutIndex, _ := strconv.Atoi(shoeMeta["cut_index"])
	needsShuffle := shoeMeta["needs_shuffle"] == "1"
	if len(shoe) > 0 && len(shoe) > cutIndex && !needsShuffle {
		return nil
	}

	decks := m.ShoeDecks
	if decks < 1 {
		decks = 1
	}
	fresh := cards.NewShoe(decks, e.Rand)
	cut := int(float64(len(fresh)) * m.ReshuffleWhenRemainingPct)
	if err := e.Repo.SaveShoe(ctx, tid, fresh); err != nil {
		return err
	}
	return e.Repo.SetShoeMeta(ctx, tid, map[string]string{
		"decks":         strconv.Itoa(decks),
		"cut_index":     strconv.Itoa(cut),
		"needs_shuffle": "0",
	})
}

// draw pops the top card (tail) of the shoe. An exhausted shoe is
// rebuilt mid-hand and flagged for a full reshuffle before the next
// deal.
func (e *Engine) draw(ctx context.Context, tid string, m *Meta) (string, error) {
	shoe, err := e.Repo.LoadShoe(ctx, tid)
	if err != nil {
		return "", err
	}
	if len(shoe) == 0 {
		decks := m.ShoeDecks
		if decks < 1 {
			decks = 1
		}
		shoe = cards.NewShoe(decks, e.Rand)
		if err := e.Repo.SetShoeMeta(ctx, tid, map[string]string{"needs_shuffle": "1"}); err != nil {
			return "", err
		}
	}
	card := shoe[len(shoe)-1]
	shoe = shoe[:len(shoe)-1]
	if err := e.Repo.SaveShoe(ctx, tid, shoe); err != nil {
		return "", err
	}
	return card, nil
}

// appendToHand draws nothing itself; it persists the grown hand with
// its recomputed value and returns the new state.
func (e *Engine) appendToHand(ctx context.Context, tid, handID, card string) ([]string, int, bool, error) {
	hand, err := e.Repo.LoadHandCards(ctx, tid, handID)
	if err != nil {
		return nil, 0, false, err
	}
	hand = append(hand, card)
	total, isSoft := cards.HandValue(hand)
	if err := e.Repo.SaveHand(ctx, tid, handID, hand, total, isSoft); err != nil {
		return nil, 0, false, err
	}
	return hand, total, isSoft, nil
}

// firstHandID returns the player's primary hand ref, or "".
func firstHandID(e *Engine, p seatedPlayer) string {
	ids := e.Repo.PlayerHandIDs(p.Data)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// dedup marks the request id; ok=false means this request was already
// applied and the operation should be silently dropped.
func (e *Engine) dedup(ctx context.Context, tid, requestID string) (bool, error) {
	if requestID == "" {
		return true, nil
	}
	return e.Repo.MarkRequest(ctx, tid, requestID)
}
