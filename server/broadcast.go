package server

import (
	"context"

	"github.com/lazharichir/blackjack/server/connection"
	"github.com/lazharichir/blackjack/store"
	"github.com/lazharichir/blackjack/table"
)

// appendAndBroadcast drains the events queued during an operation,
// persists their redacted form to the table stream, and fans each one
// out with per-seat personalization. Called after the table lock is
// released.
func (s *Server) appendAndBroadcast(ctx context.Context, tid string, buf *table.EventBuffer) {
	for _, pe := range buf.Drain() {
		storedPayload := redactPayloadForStore(pe.Type, pe.Payload)
		id, err := store.AppendEvent(ctx, s.backend, tid, pe.Type, pe.SessionID, pe.RoundID, storedPayload)
		if err != nil {
			s.log.Error().Err(err).Str("table_id", tid).Str("event_type", pe.Type).Msg("append event failed")
			continue
		}
		ev := store.Event{
			ID:        id,
			Type:      pe.Type,
			SessionID: pe.SessionID,
			RoundID:   pe.RoundID,
			Payload:   storedPayload,
		}
		original := pe.Payload
		s.connMgr.BroadcastPersonalized(tid, func(c *connection.Client) []byte {
			return personalizeEvent(ev, original, c.Seat())
		})
	}
}

// sendSnapshot builds the current table snapshot and sends the viewer's
// personalized copy to one connection.
func (s *Server) sendSnapshot(ctx context.Context, client *connection.Client, tid string) {
	snap, err := s.buildSnapshot(ctx, tid)
	if err != nil {
		s.log.Error().Err(err).Str("table_id", tid).Msg("snapshot build failed")
		return
	}
	msg := mustJSON(SnapshotMessage{
		Type:     MsgSnapshot,
		Snapshot: personalizeSnapshot(snap, client.Seat()),
	})
	s.connMgr.SendToClient(client.ID, msg)
}

// broadcastSnapshots pushes a fresh personalized snapshot to every
// connection at the table.
func (s *Server) broadcastSnapshots(ctx context.Context, tid string) {
	snap, err := s.buildSnapshot(ctx, tid)
	if err != nil {
		s.log.Error().Err(err).Str("table_id", tid).Msg("snapshot build failed")
		return
	}
	s.connMgr.BroadcastPersonalized(tid, func(c *connection.Client) []byte {
		return mustJSON(SnapshotMessage{
			Type:     MsgSnapshot,
			Snapshot: personalizeSnapshot(snap, c.Seat()),
		})
	})
}
