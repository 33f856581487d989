package table

import "context"

// Tick runs every time-driven advance for one table, in a fixed order
// so a single tick can chain transitions (vote close, forced deal, turn
// open, dealer step, settle). The caller holds the table lock and
// flushes the buffer afterwards.
func (e *Engine) Tick(ctx context.Context, tid string, buf *EventBuffer) error {
	steps := []func(context.Context, string, *EventBuffer) error{
		e.AdvanceVoteDeadline,
		e.AdvanceBetDeadline,
		e.AdvancePendingTurn,
		e.AdvanceBustPending,
		e.AdvanceDoublePending,
		e.AdvanceInactiveTurn,
		e.AdvanceDealPending,
		e.AdvanceTurnStart,
		e.AdvanceDealer,
		e.AdvanceSettle,
		e.CleanupDisconnected,
	}
	for _, step := range steps {
		if err := step(ctx, tid, buf); err != nil {
			return err
		}
	}
	return nil
}
