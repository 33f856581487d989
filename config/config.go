package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings holds the env-backed server configuration. All values have
// sensible defaults so the server runs with no environment at all.
type Settings struct {
	RedisURL string
	Addr     string
	TableID  string

	SeatCount int

	ShoeDecks                 int
	ReshuffleWhenRemainingPct float64
	DealerSoft17Mode          string // S17, H17, RANDOM_PER_ROUND
	BlackjackPayout           float64
	StartingBankroll          int
	MinBet                    int
	MaxBet                    int
	BetTimeSeconds            int
	VoteTimeSeconds           int
	ReconnectGraceSeconds     int
	MinPlayersToStart         int
	RequireReady              bool
	AllowJoinDuringSession    bool
	NoBetBehavior             string // SIT_OUT_ROUND, AUTO_MIN_BET
	NoVoteCountsAs            string // YES, NO
	TieResult                 string // CONTINUE, END
	AutoEndIfNoActiveBettors  bool
	ShowDealerRule            bool
}

// Load reads settings from the environment.
func Load() Settings {
	return Settings{
		RedisURL: getString("REDIS_URL", "redis://localhost:6379/0"),
		Addr:     getString("BJ_ADDR", ":8080"),
		TableID:  getString("BJ_TABLE_ID", "default"),

		SeatCount: getInt("BJ_SEAT_COUNT", 5),

		ShoeDecks:                 getInt("BJ_SHOE_DECKS", 6),
		ReshuffleWhenRemainingPct: getFloat("BJ_RESHUFFLE_WHEN_REMAINING_PCT", 0.25),
		DealerSoft17Mode:          strings.ToUpper(getString("BJ_DEALER_SOFT_17_MODE", "RANDOM_PER_ROUND")),
		BlackjackPayout:           getFloat("BJ_BLACKJACK_PAYOUT", 1.5),
		StartingBankroll:          getInt("BJ_STARTING_BANKROLL", 1000),
		MinBet:                    getInt("BJ_MIN_BET", 10),
		MaxBet:                    getInt("BJ_MAX_BET", 200),
		BetTimeSeconds:            getInt("BJ_BET_TIME_SECONDS", 0),
		VoteTimeSeconds:           getInt("BJ_VOTE_TIME_SECONDS", 15),
		ReconnectGraceSeconds:     getInt("BJ_RECONNECT_GRACE_SECONDS", 300),
		MinPlayersToStart:         getInt("BJ_MIN_PLAYERS_TO_START", 2),
		RequireReady:              getBool("BJ_REQUIRE_READY", true),
		AllowJoinDuringSession:    getBool("BJ_ALLOW_JOIN_DURING_SESSION", false),
		NoBetBehavior:             strings.ToUpper(getString("BJ_NO_BET_BEHAVIOR", "SIT_OUT_ROUND")),
		NoVoteCountsAs:            strings.ToUpper(getString("BJ_NO_VOTE_COUNTS_AS", "NO")),
		TieResult:                 strings.ToUpper(getString("BJ_TIE_RESULT", "CONTINUE")),
		AutoEndIfNoActiveBettors:  getBool("BJ_AUTO_END_IF_NO_ACTIVE_BETTORS", true),
		ShowDealerRule:            getBool("BJ_SHOW_DEALER_RULE", true),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}
