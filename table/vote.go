package table

import (
	"context"
	"fmt"
	"strings"
)

// HandleVoteContinue records one player's continue/end vote and tallies
// early if everyone has voted.
func (e *Engine) HandleVoteContinue(ctx context.Context, tid, pid, vote, requestID string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseVoteContinue {
		return fmt.Errorf("no vote in progress")
	}

	vote = strings.ToLower(vote)
	if vote != "yes" && vote != "no" {
		return fmt.Errorf("vote must be yes or no")
	}

	ok, err := e.dedup(ctx, tid, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	seat, err := e.Repo.SeatForPlayer(ctx, tid, pid)
	if err != nil {
		return err
	}
	if seat == 0 {
		return fmt.Errorf("not seated at this table")
	}

	if err := e.Repo.CastVote(ctx, tid, m.RoundID, pid, vote); err != nil {
		return err
	}
	buf.Emit(m, EvtVoteCast, map[string]any{
		"player_id": pid,
		"seat":      seat,
		"vote":      vote,
	})

	if err := e.finalizeVote(ctx, tid, m, buf, false); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// AdvanceVoteDeadline is the ticker hook that closes the vote at its
// deadline.
func (e *Engine) AdvanceVoteDeadline(ctx context.Context, tid string, buf *EventBuffer) error {
	m, err := e.loadMeta(ctx, tid)
	if err != nil {
		return err
	}
	if m.Phase != PhaseVoteContinue || m.VoteDeadlineTS == 0 || e.nowMS() < m.VoteDeadlineTS {
		return nil
	}
	if err := e.finalizeVote(ctx, tid, m, buf, true); err != nil {
		return err
	}
	return e.saveMeta(ctx, tid, m)
}

// finalizeVote tallies once every active player has voted or the
// deadline has passed. Missing votes count as no_vote_counts_as.
func (e *Engine) finalizeVote(ctx context.Context, tid string, m *Meta, buf *EventBuffer, timeout bool) error {
	players, err := e.seatedPlayers(ctx, tid)
	if err != nil {
		return err
	}
	votes, err := e.Repo.GetVotes(ctx, tid, m.RoundID)
	if err != nil {
		return err
	}

	active := make([]seatedPlayer, 0, len(players))
	for _, p := range players {
		if p.active() {
			active = append(active, p)
		}
	}
	allVoted := true
	for _, p := range active {
		if _, ok := votes[p.ID]; !ok {
			allVoted = false
			break
		}
	}
	if !timeout && !allVoted {
		return nil
	}

	defaultVote := strings.ToLower(e.Cfg.NoVoteCountsAs)
	yes, no := 0, 0
	for _, p := range active {
		v, ok := votes[p.ID]
		if !ok {
			v = defaultVote
		}
		if v == "yes" {
			yes++
		} else {
			no++
		}
	}

	result := "CONTINUE"
	switch {
	case no > yes:
		result = "END"
	case yes == no:
		result = e.Cfg.TieResult
	}
	buf.Emit(m, EvtVoteResult, map[string]any{
		"yes":    yes,
		"no":     no,
		"result": result,
	})

	if err := e.Repo.ClearVotes(ctx, tid, m.RoundID); err != nil {
		return err
	}
	m.VoteDeadlineTS = 0

	if result == "END" {
		e.endSession(m, buf, tid, "voted to end")
		return nil
	}
	return e.startNextRound(ctx, tid, m, buf)
}

// startNextRound rolls the table back to betting with pending admin
// config applied.
func (e *Engine) startNextRound(ctx context.Context, tid string, m *Meta, buf *EventBuffer) error {
	m.applyPendingConfig()
	m.RoundID++
	if err := e.Repo.ClearBets(ctx, tid); err != nil {
		return err
	}
	if err := e.Repo.ClearHands(ctx, tid); err != nil {
		return err
	}
	m.DealerHandID = ""
	m.DealerRevealed = false
	m.DealerStep = ""
	m.DealerStepDueTS = 0
	m.DealerSeq = 0
	m.clearTurnPendings()
	m.TurnSeat = 0

	e.setPhase(m, buf, PhaseWaitingForBets)
	m.BetDeadlineTS = 0
	if e.Cfg.BetTimeSeconds > 0 {
		m.BetDeadlineTS = e.nowMS() + int64(e.Cfg.BetTimeSeconds)*1000
	}
	return nil
}
