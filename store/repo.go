package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lazharichir/blackjack/config"
)

// Repo provides typed accessors over the Backend for the table
// aggregate: meta, seats, players, hands, shoe, votes, request dedup.
type Repo struct {
	B   Backend
	Cfg config.Settings

	// Now is injectable for tests.
	Now func() time.Time
}

// NewRepo builds a Repo with the given backend and settings.
func NewRepo(b Backend, cfg config.Settings) *Repo {
	return &Repo{B: b, Cfg: cfg, Now: time.Now}
}

func (r *Repo) nowMS() int64 { return r.Now().UnixMilli() }

// Snapshot is the authoritative table view handed to the
// personalization layer before sending.
type Snapshot struct {
	Meta       map[string]string            `json:"meta"`
	Seats      map[string]string            `json:"seats"`
	Players    map[string]map[string]string `json:"players"`
	DealerHand map[string]string            `json:"dealer_hand"`
}

// EnsureTable creates the table meta hash if absent and registers the
// table. Returns the (possibly pre-existing) meta.
func (r *Repo) EnsureTable(ctx context.Context, tid string) (map[string]string, error) {
	metaKey := keyTableMeta(tid)
	exists, err := r.B.Exists(ctx, metaKey)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := r.B.SAdd(ctx, keyTablesSet(), tid); err != nil {
			return nil, err
		}
		return r.B.HGetAll(ctx, metaKey)
	}

	meta := map[string]string{
		"phase":                                "LOBBY",
		"session_id":                           uuid.NewString(),
		"round_id":                             "0",
		"turn_seat":                            "0",
		"bet_deadline_ts":                      "0",
		"vote_deadline_ts":                     "0",
		"pending_advance_ts":                   "0",
		"pending_advance_seat":                 "0",
		"pending_bust_announce_ts":             "0",
		"pending_bust_seat":                    "0",
		"pending_bust_player_id":               "",
		"pending_double_due_ts":                "0",
		"pending_double_seat":                  "0",
		"pending_double_player_id":             "",
		"pending_double_hand_id":               "",
		"dealer_revealed":                      "0",
		"pause_until_ts":                       "0",
		"settle_pending":                       "0",
		"settle_collect_started":               "0",
		"deal_pending":                         "0",
		"turn_start_due_ts":                    "0",
		"starting_bankroll":                    strconv.Itoa(r.Cfg.StartingBankroll),
		"min_bet":                              strconv.Itoa(r.Cfg.MinBet),
		"max_bet":                              strconv.Itoa(r.Cfg.MaxBet),
		"dealer_soft_17_rule":                  "",
		"shoe_decks":                           strconv.Itoa(r.Cfg.ShoeDecks),
		"reshuffle_when_remaining_pct":         formatFloat(r.Cfg.ReshuffleWhenRemainingPct),
		"reconnect_grace_seconds":              strconv.Itoa(r.Cfg.ReconnectGraceSeconds),
		"pending_starting_bankroll":            "",
		"pending_min_bet":                      "",
		"pending_max_bet":                      "",
		"pending_shoe_decks":                   "",
		"pending_reshuffle_when_remaining_pct": "",
	}
	if err := r.B.HSet(ctx, metaKey, meta); err != nil {
		return nil, err
	}
	if err := r.B.SAdd(ctx, keyTablesSet(), tid); err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *Repo) GetMeta(ctx context.Context, tid string) (map[string]string, error) {
	return r.B.HGetAll(ctx, keyTableMeta(tid))
}

func (r *Repo) SetMeta(ctx context.Context, tid string, updates map[string]string) error {
	return r.B.HSet(ctx, keyTableMeta(tid), updates)
}

func (r *Repo) SetReconnectToken(ctx context.Context, token, pid string) error {
	return r.B.Set(ctx, keyReconnectToken(token), pid)
}

func (r *Repo) GetReconnectPID(ctx context.Context, token string) (string, error) {
	pid, _, err := r.B.Get(ctx, keyReconnectToken(token))
	return pid, err
}

// UpsertPlayer registers or refreshes a player. A returning player
// keeps their bankroll; a new one starts at the table's configured
// starting bankroll.
func (r *Repo) UpsertPlayer(ctx context.Context, tid, pid string, seat int, nickname, reconnectToken string) error {
	if err := r.B.SAdd(ctx, keyTablePlayers(tid), pid); err != nil {
		return err
	}
	playerKey := keyTablePlayer(tid, pid)
	exists, err := r.B.Exists(ctx, playerKey)
	if err != nil {
		return err
	}
	if exists {
		return r.B.HSet(ctx, playerKey, map[string]string{
			"seat":            strconv.Itoa(seat),
			"name":            nickname,
			"reconnect_token": reconnectToken,
			"status":          "active",
			"last_seen_ts":    strconv.FormatInt(r.nowMS(), 10),
		})
	}

	startingBankroll := r.Cfg.StartingBankroll
	if meta, err := r.GetMeta(ctx, tid); err == nil {
		if raw := meta["starting_bankroll"]; raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				startingBankroll = n
			}
		}
	}

	return r.B.HSet(ctx, playerKey, map[string]string{
		"seat":            strconv.Itoa(seat),
		"name":            nickname,
		"bankroll":        strconv.Itoa(startingBankroll),
		"status":          "active",
		"bet":             "0",
		"bet_submitted":   "0",
		"hand_ids":        "[]",
		"reconnect_token": reconnectToken,
		"last_seen_ts":    strconv.FormatInt(r.nowMS(), 10),
	})
}

func (r *Repo) UpdateLastSeen(ctx context.Context, tid, pid string) error {
	return r.B.HSet(ctx, keyTablePlayer(tid, pid), map[string]string{
		"last_seen_ts": strconv.FormatInt(r.nowMS(), 10),
	})
}

func (r *Repo) MarkDisconnected(ctx context.Context, tid, pid string) error {
	return r.B.HSet(ctx, keyTablePlayer(tid, pid), map[string]string{
		"status":       "disconnected",
		"last_seen_ts": strconv.FormatInt(r.nowMS(), 10),
	})
}

// RemovePlayer clears the player's seat binding, reconnect token, and
// hash, and drops them from the player and ready sets.
func (r *Repo) RemovePlayer(ctx context.Context, tid, pid string) error {
	seatsKey := keyTableSeats(tid)
	seat, _, err := r.B.HGet(ctx, seatsKey, "player:"+pid)
	if err != nil {
		return err
	}
	playerKey := keyTablePlayer(tid, pid)
	token, _, err := r.B.HGet(ctx, playerKey, "reconnect_token")
	if err != nil {
		return err
	}
	if token != "" {
		if err := r.B.Del(ctx, keyReconnectToken(token)); err != nil {
			return err
		}
	}
	if seat != "" {
		if err := r.B.HDel(ctx, seatsKey, "player:"+pid, "seat:"+seat); err != nil {
			return err
		}
	}
	if err := r.B.SRem(ctx, keyTablePlayers(tid), pid); err != nil {
		return err
	}
	if err := r.B.SRem(ctx, keyTableReady(tid), pid); err != nil {
		return err
	}
	return r.B.Del(ctx, playerKey)
}

// CleanupDisconnected removes players disconnected for longer than the
// grace window. Returns how many were removed.
func (r *Repo) CleanupDisconnected(ctx context.Context, tid string, graceSeconds int) (int, error) {
	players, err := r.GetAllPlayers(ctx, tid)
	if err != nil {
		return 0, err
	}
	now := r.nowMS()
	removed := 0
	for pid, pdata := range players {
		if pdata["status"] != "disconnected" {
			continue
		}
		lastSeen, _ := strconv.ParseInt(pdata["last_seen_ts"], 10, 64)
		if now-lastSeen > int64(graceSeconds)*1000 {
			if err := r.RemovePlayer(ctx, tid, pid); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// SeatForPlayer returns the player's seat, or 0 if unseated.
func (r *Repo) SeatForPlayer(ctx context.Context, tid, pid string) (int, error) {
	raw, ok, err := r.B.HGet(ctx, keyTableSeats(tid), "player:"+pid)
	if err != nil || !ok {
		return 0, err
	}
	seat, _ := strconv.Atoi(raw)
	return seat, nil
}

// PlayerIDForSeat returns the player holding a seat, or "".
func (r *Repo) PlayerIDForSeat(ctx context.Context, tid string, seat int) (string, error) {
	if seat <= 0 {
		return "", nil
	}
	pid, _, err := r.B.HGet(ctx, keyTableSeats(tid), "seat:"+strconv.Itoa(seat))
	return pid, err
}

// AssignSeat gives the player the lowest free seat.
func (r *Repo) AssignSeat(ctx context.Context, tid, pid string) (int, error) {
	seatsKey := keyTableSeats(tid)
	for seat := 1; seat <= r.Cfg.SeatCount; seat++ {
		seatField := "seat:" + strconv.Itoa(seat)
		_, taken, err := r.B.HGet(ctx, seatsKey, seatField)
		if err != nil {
			return 0, err
		}
		if taken {
			continue
		}
		err = r.B.HSet(ctx, seatsKey, map[string]string{
			seatField:       pid,
			"player:" + pid: strconv.Itoa(seat),
		})
		if err != nil {
			return 0, err
		}
		return seat, nil
	}
	return 0, fmt.Errorf("no available seats")
}

// BindSeat re-binds a returning player to a specific seat when it is
// free or already theirs. Returns 0 when the seat is taken.
func (r *Repo) BindSeat(ctx context.Context, tid, pid string, seat int) (int, error) {
	if seat <= 0 {
		return 0, nil
	}
	seatsKey := keyTableSeats(tid)
	seatField := "seat:" + strconv.Itoa(seat)
	current, _, err := r.B.HGet(ctx, seatsKey, seatField)
	if err != nil {
		return 0, err
	}
	if current != "" && current != pid {
		return 0, nil
	}
	err = r.B.HSet(ctx, seatsKey, map[string]string{
		seatField:       pid,
		"player:" + pid: strconv.Itoa(seat),
	})
	if err != nil {
		return 0, err
	}
	return seat, nil
}

func (r *Repo) IsReady(ctx context.Context, tid, pid string) (bool, error) {
	return r.B.SIsMember(ctx, keyTableReady(tid), pid)
}

func (r *Repo) SetReady(ctx context.Context, tid, pid string, ready bool) error {
	if ready {
		return r.B.SAdd(ctx, keyTableReady(tid), pid)
	}
	return r.B.SRem(ctx, keyTableReady(tid), pid)
}

func (r *Repo) ReadyPlayers(ctx context.Context, tid string) (map[string]bool, error) {
	members, err := r.B.SMembers(ctx, keyTableReady(tid))
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(members))
	for _, pid := range members {
		out[pid] = true
	}
	return out, nil
}

// GetSnapshot assembles the authoritative table view. The dealer hand
// is pre-redacted to the upcard outside reveal phases; per-player
// redaction happens later, per recipient.
func (r *Repo) GetSnapshot(ctx context.Context, tid string) (Snapshot, error) {
	meta, err := r.GetMeta(ctx, tid)
	if err != nil {
		return Snapshot{}, err
	}
	seats, err := r.B.HGetAll(ctx, keyTableSeats(tid))
	if err != nil {
		return Snapshot{}, err
	}
	players, err := r.GetAllPlayers(ctx, tid)
	if err != nil {
		return Snapshot{}, err
	}

	dealerHand := map[string]string{}
	if dealerHandID := meta["dealer_hand_id"]; dealerHandID != "" {
		dealerHand, err = r.B.HGetAll(ctx, keyTableHand(tid, dealerHandID))
		if err != nil {
			return Snapshot{}, err
		}
		phase := meta["phase"]
		revealPhase := phase == "SETTLE" || phase == "VOTE_CONTINUE" || phase == "SESSION_ENDED"
		dealerRevealed := meta["dealer_revealed"] == "1"
		dealerStep := meta["dealer_step"]
		canReveal := revealPhase || (phase == "DEALER_TURN" && (dealerRevealed || dealerStep == "DRAW"))
		if len(dealerHand) > 0 && !canReveal {
			var all []string
			if raw := dealerHand["cards"]; raw != "" {
				_ = json.Unmarshal([]byte(raw), &all)
			}
			public := all
			if len(public) > 1 {
				public = public[:1]
			}
			rawPublic, _ := json.Marshal(public)
			dealerHand = map[string]string{
				"cards":     string(rawPublic),
				"total":     "",
				"is_soft":   "",
				"face_down": "1",
			}
		}
	}

	return Snapshot{
		Meta:       meta,
		Seats:      seats,
		Players:    players,
		DealerHand: dealerHand,
	}, nil
}

// MarkRequest records a client request_id; false means it was already
// seen within the TTL.
func (r *Repo) MarkRequest(ctx context.Context, tid, requestID string) (bool, error) {
	return r.B.SetNX(ctx, keyTableRequest(tid, requestID), "1", 120*time.Second)
}

func (r *Repo) SetBet(ctx context.Context, tid, pid string, amount int) error {
	return r.B.HSet(ctx, keyTablePlayer(tid, pid), map[string]string{"bet": strconv.Itoa(amount)})
}

func (r *Repo) SetBetSubmitted(ctx context.Context, tid, pid string, submitted bool) error {
	v := "0"
	if submitted {
		v = "1"
	}
	return r.B.HSet(ctx, keyTablePlayer(tid, pid), map[string]string{"bet_submitted": v})
}

func (r *Repo) AdjustBankroll(ctx context.Context, tid, pid string, delta int) error {
	_, err := r.B.HIncrBy(ctx, keyTablePlayer(tid, pid), "bankroll", int64(delta))
	return err
}

func (r *Repo) GetPlayer(ctx context.Context, tid, pid string) (map[string]string, error) {
	return r.B.HGetAll(ctx, keyTablePlayer(tid, pid))
}

func (r *Repo) GetAllPlayers(ctx context.Context, tid string) (map[string]map[string]string, error) {
	pids, err := r.B.SMembers(ctx, keyTablePlayers(tid))
	if err != nil {
		return nil, err
	}
	players := make(map[string]map[string]string, len(pids))
	for _, pid := range pids {
		pdata, err := r.B.HGetAll(ctx, keyTablePlayer(tid, pid))
		if err != nil {
			return nil, err
		}
		players[pid] = pdata
	}
	return players, nil
}

func (r *Repo) SetPlayerHandIDs(ctx context.Context, tid, pid string, handIDs []string) error {
	raw, err := json.Marshal(handIDs)
	if err != nil {
		return err
	}
	return r.B.HSet(ctx, keyTablePlayer(tid, pid), map[string]string{"hand_ids": string(raw)})
}

// PlayerHandIDs decodes the player's ordered hand refs.
func (r *Repo) PlayerHandIDs(pdata map[string]string) []string {
	var handIDs []string
	if raw := pdata["hand_ids"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &handIDs)
	}
	return handIDs
}

// ClearHands resets every player's hand refs and deletes the dealer
// hand.
func (r *Repo) ClearHands(ctx context.Context, tid string) error {
	players, err := r.GetAllPlayers(ctx, tid)
	if err != nil {
		return err
	}
	for pid := range players {
		if err := r.SetPlayerHandIDs(ctx, tid, pid, []string{}); err != nil {
			return err
		}
	}
	meta, err := r.GetMeta(ctx, tid)
	if err != nil {
		return err
	}
	if dealerHandID := meta["dealer_hand_id"]; dealerHandID != "" {
		if err := r.B.Del(ctx, keyTableHand(tid, dealerHandID)); err != nil {
			return err
		}
		return r.SetMeta(ctx, tid, map[string]string{"dealer_hand_id": ""})
	}
	return nil
}

func (r *Repo) ClearBets(ctx context.Context, tid string) error {
	players, err := r.GetAllPlayers(ctx, tid)
	if err != nil {
		return err
	}
	for pid := range players {
		err := r.B.HSet(ctx, keyTablePlayer(tid, pid), map[string]string{
			"bet":           "0",
			"bet_submitted": "0",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) SaveShoe(ctx context.Context, tid string, shoe []string) error {
	raw, err := json.Marshal(shoe)
	if err != nil {
		return err
	}
	return r.B.Set(ctx, keyTableShoe(tid), string(raw))
}

func (r *Repo) LoadShoe(ctx context.Context, tid string) ([]string, error) {
	raw, ok, err := r.B.Get(ctx, keyTableShoe(tid))
	if err != nil || !ok {
		return nil, err
	}
	var shoe []string
	if err := json.Unmarshal([]byte(raw), &shoe); err != nil {
		return nil, nil
	}
	return shoe, nil
}

func (r *Repo) SetShoeMeta(ctx context.Context, tid string, updates map[string]string) error {
	return r.B.HSet(ctx, keyTableShoeMeta(tid), updates)
}

func (r *Repo) GetShoeMeta(ctx context.Context, tid string) (map[string]string, error) {
	return r.B.HGetAll(ctx, keyTableShoeMeta(tid))
}

func (r *Repo) SaveHand(ctx context.Context, tid, handID string, hand []string, total int, isSoft bool) error {
	raw, err := json.Marshal(hand)
	if err != nil {
		return err
	}
	soft := "0"
	if isSoft {
		soft = "1"
	}
	return r.B.HSet(ctx, keyTableHand(tid, handID), map[string]string{
		"cards":   string(raw),
		"total":   strconv.Itoa(total),
		"is_soft": soft,
	})
}

func (r *Repo) LoadHandCards(ctx context.Context, tid, handID string) ([]string, error) {
	raw, ok, err := r.B.HGet(ctx, keyTableHand(tid, handID), "cards")
	if err != nil || !ok {
		return nil, err
	}
	var hand []string
	if err := json.Unmarshal([]byte(raw), &hand); err != nil {
		return nil, nil
	}
	return hand, nil
}

func (r *Repo) CastVote(ctx context.Context, tid string, roundID int, pid, vote string) error {
	return r.B.HSet(ctx, keyTableVote(tid, roundID), map[string]string{pid: vote})
}

func (r *Repo) GetVotes(ctx context.Context, tid string, roundID int) (map[string]string, error) {
	return r.B.HGetAll(ctx, keyTableVote(tid, roundID))
}

func (r *Repo) ClearVotes(ctx context.Context, tid string, roundID int) error {
	return r.B.Del(ctx, keyTableVote(tid, roundID))
}

// PlayerCount is the size of the table's player set.
func (r *Repo) PlayerCount(ctx context.Context, tid string) (int, error) {
	n, err := r.B.SCard(ctx, keyTablePlayers(tid))
	return int(n), err
}

// ClearTable deletes every key belonging to the table and unregisters
// it, so a fresh JOIN recreates the room in LOBBY.
func (r *Repo) ClearTable(ctx context.Context, tid string) error {
	meta, err := r.GetMeta(ctx, tid)
	if err != nil {
		return err
	}
	roundID, _ := strconv.Atoi(meta["round_id"])
	dealerHandID := meta["dealer_hand_id"]

	pids, err := r.B.SMembers(ctx, keyTablePlayers(tid))
	if err != nil {
		return err
	}
	for _, pid := range pids {
		pdata, err := r.GetPlayer(ctx, tid, pid)
		if err != nil {
			return err
		}
		for _, handID := range r.PlayerHandIDs(pdata) {
			if err := r.B.Del(ctx, keyTableHand(tid, handID)); err != nil {
				return err
			}
		}
		if err := r.RemovePlayer(ctx, tid, pid); err != nil {
			return err
		}
	}

	if dealerHandID != "" {
		if err := r.B.Del(ctx, keyTableHand(tid, dealerHandID)); err != nil {
			return err
		}
	}

	err = r.B.Del(ctx,
		keyTableMeta(tid),
		keyTablePlayers(tid),
		keyTableSeats(tid),
		keyTableReady(tid),
		keyTableShoe(tid),
		keyTableShoeMeta(tid),
		keyTableEvents(tid),
		keyTableVote(tid, roundID),
	)
	if err != nil {
		return err
	}
	return r.B.SRem(ctx, keyTablesSet(), tid)
}

// Tables lists all registered table IDs.
func (r *Repo) Tables(ctx context.Context) ([]string, error) {
	return r.B.SMembers(ctx, keyTablesSet())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
