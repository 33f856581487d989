package table

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Identity is the HELLO result: a stable player id plus the token that
// lets a reconnecting client reclaim it.
type Identity struct {
	PlayerID       string
	ReconnectToken string
}

// Hello resolves or mints a player identity. A known reconnect token
// returns the original player id so the seat and bankroll survive the
// new connection.
func (e *Engine) Hello(ctx context.Context, reconnectToken string) (Identity, error) {
	if reconnectToken != "" {
		pid, err := e.Repo.GetReconnectPID(ctx, reconnectToken)
		if err != nil {
			return Identity{}, err
		}
		if pid != "" {
			return Identity{PlayerID: pid, ReconnectToken: reconnectToken}, nil
		}
	}
	id := Identity{
		PlayerID:       uuid.NewString(),
		ReconnectToken: uuid.NewString(),
	}
	if err := e.Repo.SetReconnectToken(ctx, id.ReconnectToken, id.PlayerID); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// JoinTable seats the player, creating the table on first join. A
// session in progress refuses newcomers unless configured otherwise;
// players already known to the table always get back in.
func (e *Engine) JoinTable(ctx context.Context, tid, pid, nickname, reconnectToken string, preferredSeat int, buf *EventBuffer) error {
	if _, err := e.Repo.EnsureTable(ctx, tid); err != nil {
		return err
	}
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}

	existingSeat, err := e.Repo.SeatForPlayer(ctx, tid, pid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseLobby && existingSeat == 0 && !e.Cfg.AllowJoinDuringSession {
		return fmt.Errorf("session in progress")
	}

	seat := existingSeat
	if seat == 0 {
		seat, err = e.Repo.BindSeat(ctx, tid, pid, preferredSeat)
		if err != nil {
			return err
		}
	}
	if seat == 0 {
		seat, err = e.Repo.AssignSeat(ctx, tid, pid)
		if err != nil {
			return fmt.Errorf("table is full")
		}
	}

	if err := e.Repo.UpsertPlayer(ctx, tid, pid, seat, nickname, reconnectToken); err != nil {
		return err
	}
	if reconnectToken != "" {
		if err := e.Repo.SetReconnectToken(ctx, reconnectToken, pid); err != nil {
			return err
		}
	}

	buf.Emit(m, EvtPlayerJoined, map[string]any{
		"player_id": pid,
		"seat":      seat,
		"name":      nickname,
	})
	e.Log.Info().Str("table_id", tid).Str("player_id", pid).Int("seat", seat).Msg("player joined")

	if m.Phase == PhaseLobby {
		if err := e.maybeAutoStart(ctx, tid, m, buf); err != nil {
			return err
		}
	}
	return e.saveMeta(ctx, tid, m)
}

// ReadyToggle flips the player's lobby ready flag.
func (e *Engine) ReadyToggle(ctx context.Context, tid, pid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseLobby {
		return fmt.Errorf("ready is a lobby action")
	}
	seat, err := e.Repo.SeatForPlayer(ctx, tid, pid)
	if err != nil {
		return err
	}
	if seat == 0 {
		return fmt.Errorf("not seated at this table")
	}

	ready, err := e.Repo.IsReady(ctx, tid, pid)
	if err != nil {
		return err
	}
	if err := e.Repo.SetReady(ctx, tid, pid, !ready); err != nil {
		return err
	}
	buf.Emit(m, EvtReadyChanged, map[string]any{
		"player_id": pid,
		"seat":      seat,
		"ready":     !ready,
	})

	if err := e.maybeAutoStart(ctx, tid, m, buf); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// StartSession starts the game explicitly from the lobby.
func (e *Engine) StartSession(ctx context.Context, tid, pid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseLobby {
		return fmt.Errorf("session already running")
	}
	ok, reason, err := e.canStart(ctx, tid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s", reason)
	}
	if err := e.startSessionLocked(ctx, tid, m, buf); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// canStart checks the lobby start conditions.
func (e *Engine) canStart(ctx context.Context, tid string) (bool, string, error) {
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return false, "", err
	}
	active := make([]seatedPlayer, 0, len(players))
	for _, p := range players {
		if p.active() {
			active = append(active, p)
		}
	}
	if len(active) < e.Cfg.MinPlayersToStart {
		return false, fmt.Sprintf("need at least %d players", e.Cfg.MinPlayersToStart), nil
	}
	if e.Cfg.RequireReady {
		ready, err := e.Repo.ReadyPlayers(ctx, tid)
		if err != nil {
			return false, "", err
		}
		for _, p := range active {
			if !ready[p.ID] {
				return false, "all players must be ready", nil
			}
		}
	}
	return true, "", nil
}

func (e *Engine) maybeAutoStart(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	ok, _, err := e.canStart(ctx, tid)
	if err != nil || !ok {
		return err
	}
	return e.startSessionLocked(ctx, tid, m, buf)
}

// startSessionLocked begins a fresh session: new session id, round 1,
// clean hands and bets, betting open.
func (e *Engine) startSessionLocked(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	m.applyPendingConfig()
	if err := e.Repo.ClearBets(ctx, tid); err != nil {
		return err
	}
	if err := e.Repo.ClearHands(ctx, tid); err != nil {
		return err
	}
	m.DealerHandID = ""
	m.SessionID = uuid.NewString()
	m.RoundID = 1
	m.SessionStartedTS = e.nowMS()

	buf.Emit(m, EvtSessionStarted, map[string]any{"table_id": tid, "session_id": m.SessionID})
	e.announce(m, buf, "GAME BEGIN", ToneNeutral, announceDefaultMS, 0)
	e.setPhase(m, buf, PhaseWaitingForBets)
	m.BetDeadlineTS = 0
	if e.Cfg.BetTimeSeconds > 0 {
		m.BetDeadlineTS = e.nowMS() + int64(e.Cfg.BetTimeSeconds)*1000
	}
	e.Log.Info().Str("table_id", tid).Str("session_id", m.SessionID).Msg("session started")
	return nil
}

// AdminConfig stages table configuration that takes effect at the next
// round boundary. Zero-valued fields are ignored; validation is against
// the effective (staged-or-current) values.
type AdminConfig struct {
	StartingBankroll          *int
	MinBet                    *int
	MaxBet                    *int
	ShoeDecks                 *int
	ReshuffleWhenRemainingPct *float64
}

// HandleAdminConfig validates and stages config changes.
func (e *Engine) HandleAdminConfig(ctx context.Context, tid, pid string, cfg AdminConfig, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
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

	if cfg.StartingBankroll != nil && *cfg.StartingBankroll < 0 {
		return fmt.Errorf("starting_bankroll must be >= 0")
	}
	if cfg.MinBet != nil && *cfg.MinBet < 0 {
		return fmt.Errorf("min_bet must be >= 0")
	}
	if cfg.MaxBet != nil && *cfg.MaxBet < 0 {
		return fmt.Errorf("max_bet must be >= 0")
	}
	if cfg.ShoeDecks != nil && *cfg.ShoeDecks < 1 {
		return fmt.Errorf("shoe_decks must be >= 1")
	}
	if cfg.ReshuffleWhenRemainingPct != nil && (*cfg.ReshuffleWhenRemainingPct <= 0 || *cfg.ReshuffleWhenRemainingPct >= 1) {
		return fmt.Errorf("reshuffle_when_remaining_pct must be between 0 and 1")
	}

	effMin := m.MinBet
	if cfg.MinBet != nil {
		effMin = *cfg.MinBet
	}
	effMax := m.MaxBet
	if cfg.MaxBet != nil {
		effMax = *cfg.MaxBet
	}
	if effMin > effMax {
		return fmt.Errorf("min_bet cannot exceed max_bet")
	}

	pending := map[string]any{}
	if cfg.StartingBankroll != nil {
		m.PendingStartingBankroll = strconv.Itoa(*cfg.StartingBankroll)
		pending["starting_bankroll"] = *cfg.StartingBankroll
	}
	if cfg.MinBet != nil {
		m.PendingMinBet = strconv.Itoa(*cfg.MinBet)
		pending["min_bet"] = *cfg.MinBet
	}
	if cfg.MaxBet != nil {
		m.PendingMaxBet = strconv.Itoa(*cfg.MaxBet)
		pending["max_bet"] = *cfg.MaxBet
	}
	if cfg.ShoeDecks != nil {
		m.PendingShoeDecks = strconv.Itoa(*cfg.ShoeDecks)
		pending["shoe_decks"] = *cfg.ShoeDecks
	}
	if cfg.ReshuffleWhenRemainingPct != nil {
		m.PendingReshuffleWhenRemainingPct = strconv.FormatFloat(*cfg.ReshuffleWhenRemainingPct, 'g', -1, 64)
		pending["reshuffle_when_remaining_pct"] = *cfg.ReshuffleWhenRemainingPct
	}
	if len(pending) == 0 {
		return fmt.Errorf("no config changes supplied")
	}

	buf.Emit(m, EvtAdminConfigUpdated, map[string]any{"pending": pending})
	return e.saveMeta(ctx, tid, m)
}

// CleanupDisconnected is the ticker hook that expels players past the
// reconnect grace window, and in lobby may unblock an auto-start.
func (e *Engine) CleanupDisconnected(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	grace := m.ReconnectGraceSeconds
	if grace <= 0 {
		grace = e.Cfg.ReconnectGraceSeconds
	}
	removed, err := e.Repo.CleanupDisconnected(ctx, tid, grace)
	if err != nil {
		return err
	}
	if removed == 0 {
		return nil
	}
	e.Log.Info().Str("table_id", tid).Int("removed", removed).Msg("removed players past reconnect grace")
	count, err := e.Repo.PlayerCount(ctx, tid)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if m.Phase == PhaseLobby {
		// Nothing ever happened here; drop the table outright.
		return e.Repo.ClearTable(ctx, tid)
	}
	e.endSession(m, buf, tid, "table empty")
	return e.saveMeta(ctx, tid, m)
}
