package voting

import (
	"context"
	"fmt"
	"time"
)

// RunFunc executes task once with the given sampling parameters. It must
// return promptly once ctx is done.
type RunFunc func(ctx context.Context, task string, params SampleParams) (string, error)

// Vote is the outcome of one voter.
type Vote struct {
	Voter  int
	Output string
	Err    error
}

// Round is the outcome of one voting round.
type Round struct {
	// Votes are in arrival order.
	Votes []Vote
	// Responses are the successful outputs, in arrival order.
	Responses []string
	// Errors counts voters that failed.
	Errors int
	// TimedOut is true if the round deadline passed before every voter answered.
	TimedOut bool
	Tally    Tally
}

// Consensus reports whether the round produced a winner on its own.
func (r Round) Consensus() bool {
	return r.Tally.Winner != ""
}

// RunRound dispatches cfg.Voters workers running runFn and collects their
// responses until all have answered or the round deadline passes. Workers
// share a context that is cancelled when the round ends, so stragglers can
// abort their in-flight calls.
func RunRound(ctx context.Context, cfg Config, runFn RunFunc, task string) Round {
	params := SampleParamsFor(cfg, time.Now())

	var roundCtx context.Context
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		roundCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	} else {
		roundCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Buffered so voters abandoned after the deadline never block.
	results := make(chan Vote, len(params))
	for _, p := range params {
		go func(p SampleParams) {
			results <- runVoter(roundCtx, runFn, task, p)
		}(p)
	}

	var round Round
collect:
	for len(round.Votes) < len(params) {
		select {
		case v := <-results:
			round.Votes = append(round.Votes, v)
			if v.Err != nil {
				round.Errors++
				continue
			}
			round.Responses = append(round.Responses, v.Output)
		case <-roundCtx.Done():
			round.TimedOut = true
			break collect
		}
	}

	round.Tally = TallyVotes(round.Responses, cfg.K, modeOf(cfg))
	return round
}

func runVoter(ctx context.Context, runFn RunFunc, task string, p SampleParams) (v Vote) {
	v.Voter = p.Voter
	defer func() {
		if r := recover(); r != nil {
			v.Err = fmt.Errorf("voter %d panicked: %v", p.Voter, r)
		}
	}()
	v.Output, v.Err = runFn(ctx, task, p)
	return v
}

func modeOf(cfg Config) Mode {
	if cfg.Mode == "" {
		return ModeNormalized
	}
	return cfg.Mode
}
