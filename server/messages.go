package server

import "encoding/json"

// Client -> server message types.
const (
	MsgHello        = "HELLO"
	MsgJoinTable    = "JOIN_TABLE"
	MsgReadyToggle  = "READY_TOGGLE"
	MsgStartSession = "START_SESSION"
	MsgAdminConfig  = "ADMIN_CONFIG"
	MsgPlaceBet     = "PLACE_BET"
	MsgAction       = "ACTION"
	MsgVoteContinue = "VOTE_CONTINUE"
	MsgSync         = "SYNC"
)

// Server -> client message types (events carry their own event type).
const (
	MsgWelcome  = "WELCOME"
	MsgSnapshot = "SNAPSHOT"
	MsgError    = "ERROR"
)

// Error codes.
const (
	CodeBadJSON       = "BAD_JSON"
	CodeBadRequest    = "BAD_REQUEST"
	CodeHelloRequired = "HELLO_REQUIRED"
	CodeJoinRequired  = "JOIN_REQUIRED"
	CodeJoinDenied    = "JOIN_DENIED"
	CodeReadyDenied   = "READY_DENIED"
	CodeStartDenied   = "START_DENIED"
	CodeAdminDenied   = "ADMIN_DENIED"
	CodeBetDenied     = "BET_DENIED"
	CodeActionDenied  = "ACTION_DENIED"
	CodeVoteDenied    = "VOTE_DENIED"
	CodeUnhandled     = "UNHANDLED"
)

// AdminConfigPayload carries the staged config fields of ADMIN_CONFIG.
type AdminConfigPayload struct {
	StartingBankroll          *int     `json:"starting_bankroll,omitempty"`
	MinBet                    *int     `json:"min_bet,omitempty"`
	MaxBet                    *int     `json:"max_bet,omitempty"`
	ShoeDecks                 *int     `json:"shoe_decks,omitempty"`
	ReshuffleWhenRemainingPct *float64 `json:"reshuffle_when_remaining_pct,omitempty"`
}

// ClientMessage is the tagged union of everything a client can send.
type ClientMessage struct {
	Type string `json:"type"`

	// HELLO
	Nickname       string `json:"nickname,omitempty"`
	ReconnectToken string `json:"reconnect_token,omitempty"`

	// JOIN_TABLE
	TableID string `json:"table_id,omitempty"`
	Seat    int    `json:"seat,omitempty"`

	// PLACE_BET / ACTION / VOTE_CONTINUE
	Amount    int    `json:"amount,omitempty"`
	Action    string `json:"action,omitempty"`
	Vote      string `json:"vote,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// ADMIN_CONFIG
	Config *AdminConfigPayload `json:"config,omitempty"`

	// SYNC
	LastEventID string `json:"last_event_id,omitempty"`
}

// WelcomeMessage answers HELLO.
type WelcomeMessage struct {
	Type           string `json:"type"`
	PlayerID       string `json:"player_id"`
	ReconnectToken string `json:"reconnect_token"`
}

// SnapshotMessage wraps a personalized table snapshot.
type SnapshotMessage struct {
	Type     string         `json:"type"`
	Snapshot map[string]any `json:"snapshot"`
}

// ErrorMessage reports a failed operation; the connection stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"ERROR","code":"UNHANDLED","message":"encoding failure"}`)
	}
	return b
}

func errorJSON(code, message string) []byte {
	return mustJSON(ErrorMessage{Type: MsgError, Code: code, Message: message})
}
