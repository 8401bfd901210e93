package voting

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoResponses is returned when no voter produced a response in any round.
var ErrNoResponses = errors.New("no voter produced a response")

// Outcome is the result of VoteUntilConsensus.
type Outcome struct {
	// Winner is the comparison key that won.
	Winner string
	// Output is the first raw response in the winning group.
	Output string
	// Rounds is the number of rounds run.
	Rounds int
	// Responses are all successful raw responses across rounds.
	Responses []string
	// Consensus is false when the winner was a plurality fallback.
	Consensus bool
}

// VoteUntilConsensus runs voting rounds until K responses agree or
// maxRounds is reached, accumulating responses across rounds. Without a
// K winner it falls back to the plurality of the accumulated pool.
func VoteUntilConsensus(ctx context.Context, cfg Config, runFn RunFunc, task string, maxRounds int) (Outcome, error) {
	maxRounds = max(maxRounds, 1)
	mode := modeOf(cfg)

	var out Outcome
	for out.Rounds < maxRounds {
		if ctx.Err() != nil {
			break
		}
		round := RunRound(ctx, cfg, runFn, task)
		out.Rounds++
		out.Responses = append(out.Responses, round.Responses...)

		tally := TallyVotes(out.Responses, cfg.K, mode)
		if tally.Winner != "" {
			out.Winner = tally.Winner
			out.Output = tally.Raw[tally.Winner]
			out.Consensus = true
			return out, nil
		}
	}

	tally := TallyVotes(out.Responses, 1, mode)
	winner, ok := Plurality(tally)
	if !ok {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("voting cancelled: %w", err)
		}
		return out, ErrNoResponses
	}
	out.Winner = winner
	out.Output = tally.Raw[winner]
	return out, nil
}
