package server

import (
	"context"
	"errors"
	"time"

	"github.com/lazharichir/blackjack/store"
	"github.com/lazharichir/blackjack/table"
)

// runTicker advances every known table once per second. A table whose
// lock is held is simply skipped; the next tick will catch up because
// all deadlines are absolute.
func (s *Server) runTicker(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickAll(ctx)
		}
	}
}

func (s *Server) tickAll(ctx context.Context) {
	tables, err := s.repo.Tables(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("table listing failed")
		return
	}

	for _, tid := range tables {
		buf := &table.EventBuffer{}
		err := store.WithTableLock(ctx, s.backend, tid, func() error {
			return s.engine.Tick(ctx, tid, buf)
		})
		if errors.Is(err, store.ErrTableBusy) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("table_id", tid).Msg("tick failed")
			continue
		}
		if buf.Len() == 0 {
			continue
		}
		s.appendAndBroadcast(ctx, tid, buf)
		s.broadcastSnapshots(ctx, tid)
		s.destroyIfEnded(ctx, tid)
	}
}
