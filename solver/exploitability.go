package solver

import (
	"context"
	"fmt"

	"github.com/dmallory/deepcfr/internal/game"
	"github.com/dmallory/deepcfr/internal/randutil"
)

// Exploitability estimates how much a best responder wins against the
// current average strategy, in big blinds per hand, averaged over both
// seats across a sample of deals. The responder enumerates its own
// actions and takes expectation over the average strategy at opponent
// nodes, so the estimate approaches full best response as deals grow.
// Values near zero indicate convergence.
func (tc *TrainingContext) Exploitability(ctx context.Context, deals int, seed int64) (float64, error) {
	if deals < 1 {
		return 0, fmt.Errorf("exploitability needs at least one deal, got %d", deals)
	}
	stacks := [2]int{tc.cfg.StartingStack(), tc.cfg.StartingStack()}

	var total float64
	for d := 0; d < deals; d++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		rng := randutil.Derive(seed, d)
		for br := 0; br < 2; br++ {
			h, err := game.NewHand(rng, 0, stacks, tc.cfg.SmallBlind, tc.cfg.BigBlind)
			if err != nil {
				return 0, err
			}
			v, err := tc.bestResponse(ctx, h, br, traversalState{street: h.Street})
			if err != nil {
				return 0, err
			}
			total += v
		}
	}
	return total / float64(2*deals) / float64(tc.cfg.BigBlind), nil
}

// BlueprintExploitability measures a saved blueprint the same way the
// trainer measures its live table, by rebuilding a read-only context whose
// average strategy is the blueprint's.
func BlueprintExploitability(ctx context.Context, bp *Blueprint, deals int, seed int64) (float64, error) {
	cfg := DefaultTrainingConfig()
	cfg.SmallBlind = bp.SmallBlind
	cfg.BigBlind = bp.BigBlind
	cfg.StackDepth = bp.StackDepth
	cfg.Seed = seed

	tc, err := NewTrainingContext(bp.Abstraction, cfg)
	if err != nil {
		return 0, err
	}
	for key, s := range bp.Strategies {
		e := NewEntry(s.Tags)
		if len(s.Probs) != len(s.Tags) {
			return 0, fmt.Errorf("%w: entry %q has %d probs for %d actions",
				ErrCheckpointCorrupt, key, len(s.Probs), len(s.Tags))
		}
		copy(e.StrategySum, s.Probs)
		tc.Store.restore(key, e)
	}
	return tc.Exploitability(ctx, deals, seed)
}

// bestResponse returns the responder's value when it plays optimally
// against the stored average strategy on this deal.
func (tc *TrainingContext) bestResponse(ctx context.Context, h *game.HandState, responder int, st traversalState) (float64, error) {
	if tc.abs.PreflopOnly && !h.Complete() && h.Street != game.Preflop {
		checkDown(h)
	}
	if h.Complete() {
		return float64(h.Payoff(responder)), nil
	}
	if st.depth > maxTraversalDepth(&tc.abs) {
		return 0, fmt.Errorf("best response depth %d exceeds bound", st.depth)
	}
	st = st.sync(h)

	n, err := tc.nodeFor(ctx, h, st.hist, st.raises)
	if err != nil {
		return 0, err
	}

	if h.Active == responder {
		best := 0.0
		for i, a := range n.actions {
			child := h.Clone()
			if err := child.Apply(a.Move); err != nil {
				return 0, err
			}
			v, err := tc.bestResponse(ctx, child, responder, st.child(a, &tc.abs))
			if err != nil {
				return 0, err
			}
			if i == 0 || v > best {
				best = v
			}
		}
		return best, nil
	}

	avg := make([]float64, len(n.actions))
	if entry, ok := tc.Store.Lookup(n.key); ok {
		avg = entry.AverageStrategy()
	} else {
		uniform(avg)
	}
	var value float64
	for i, a := range n.actions {
		if avg[i] == 0 {
			continue
		}
		child := h.Clone()
		if err := child.Apply(a.Move); err != nil {
			return 0, err
		}
		v, err := tc.bestResponse(ctx, child, responder, st.child(a, &tc.abs))
		if err != nil {
			return 0, err
		}
		value += avg[i] * v
	}
	return value, nil
}
