package store

import (
	"context"
	"encoding/json"
	"strconv"
)

const (
	// EventStreamMaxLen caps per-table retention; the stream is
	// trimmed approximately at append.
	EventStreamMaxLen = 2000
	// EventSyncTail is how many trailing events a SYNC without a
	// resume token receives.
	EventSyncTail = 200
)

// Event is one record of the per-table event log as clients see it.
type Event struct {
	ID        string         `json:"event_id"`
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	RoundID   int            `json:"round_id"`
	Payload   map[string]any `json:"payload"`
}

// AppendEvent appends one event to the table's stream and returns its
// monotonic ID.
func AppendEvent(ctx context.Context, b Backend, tid, eventType, sessionID string, roundID int, payload map[string]any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return b.XAdd(ctx, keyTableEvents(tid), EventStreamMaxLen, map[string]string{
		"event_type": eventType,
		"session_id": sessionID,
		"round_id":   strconv.Itoa(roundID),
		"payload":    string(raw),
	})
}

// ReadEvents returns events strictly after lastEventID in stream
// order, or the trailing EventSyncTail events when lastEventID is
// empty.
func ReadEvents(ctx context.Context, b Backend, tid, lastEventID string) ([]Event, error) {
	var entries []StreamEntry
	var err error
	if lastEventID == "" {
		entries, err = b.XTail(ctx, keyTableEvents(tid), EventSyncTail)
	} else {
		entries, err = b.XRangeAfter(ctx, keyTableEvents(tid), lastEventID, 0)
	}
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(entries))
	for _, entry := range entries {
		payload := map[string]any{}
		if raw := entry.Fields["payload"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				payload = map[string]any{}
			}
		}
		roundID, _ := strconv.Atoi(entry.Fields["round_id"])
		events = append(events, Event{
			ID:        entry.ID,
			Type:      entry.Fields["event_type"],
			SessionID: entry.Fields["session_id"],
			RoundID:   roundID,
			Payload:   payload,
		})
	}
	return events, nil
}
