package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	rand "math/rand/v2"
	"strings"

	"github.com/dmallory/deepcfr/internal/game"
	"github.com/dmallory/deepcfr/solver/deep"
)

// node bundles everything known about one decision point: its key, the
// legal abstract actions and the encoded features. The store entry is
// fetched separately so read-only walks do not materialize entries.
type node struct {
	key      InfoSetKey
	actions  []AbstractAction
	tags     []ActionTag
	features []float64
}

// DescribeDecision abstracts the active player's decision point into its
// info-set key, legal abstract actions and encoded features. Both the
// trainer and the runtime bot build decisions through this single path,
// so keys match across training and play.
func DescribeDecision(ctx context.Context, mapper *Mapper, h *game.HandState, hist string, raisesThisStreet, startStack int) (InfoSetKey, []AbstractAction, []float64, error) {
	cfg := mapper.Config()
	seat := h.Active
	actions := LegalActions(h, &cfg, raisesThisStreet)
	if len(actions) == 0 {
		return InfoSetKey{}, nil, nil, fmt.Errorf("no legal actions at non-terminal state")
	}

	bucket, err := mapper.HoleBucket(ctx, h.Street, h.Players[seat].Hole, h.Board)
	if err != nil {
		return InfoSetKey{}, nil, nil, err
	}
	toCall := h.ToCall(seat)
	key := InfoSetKey{
		Player:       seat,
		Street:       int(h.Street),
		Bucket:       bucket,
		PotBucket:    mapper.PotBucket(h.Pot(), h.BigBlind),
		ToCallBucket: mapper.ToCallBucket(toCall, h.BigBlind),
		History:      hist,
	}

	features := encodeFeatures(&cfg, h.Street, bucket, h.Pot(),
		h.Players[seat].Chips, toCall, startStack,
		seat == h.Button, raisesThisStreet, historyLen(hist))

	return key, actions, features, nil
}

// nodeFor abstracts a decision point during traversal.
func (tc *TrainingContext) nodeFor(ctx context.Context, h *game.HandState, hist string, raisesThisStreet int) (node, error) {
	key, actions, features, err := DescribeDecision(ctx, tc.Mapper, h, hist, raisesThisStreet, tc.cfg.StartingStack())
	if err != nil {
		return node{}, err
	}
	tags := make([]ActionTag, len(actions))
	for i, a := range actions {
		tags[i] = a.Tag
	}
	return node{key: key, actions: actions, tags: tags, features: features}, nil
}

// strategyAt computes the current strategy for a node: the advisor's
// regret-matched prediction in neural mode, the tabular accumulators
// otherwise or on any advisor failure.
func (tc *TrainingContext) strategyAt(advisor Advisor, player int, n node, entry *Entry) []float64 {
	if s := strategyFromAdvisor(advisor, player, n.features, n.actions); s != nil {
		return s
	}
	return entry.Strategy()
}

// traversalState carries the per-branch bookkeeping that is not part of
// the engine state: the abstract history, the raise count for the street
// the branch is on, and the traverser's own reach probability (the
// product of their strategy over their earlier actions on this branch).
type traversalState struct {
	hist   string
	street game.Street
	raises int
	depth  int
	reach  float64
}

func (s traversalState) child(a AbstractAction, cfg *AbstractionConfig) traversalState {
	next := traversalState{
		hist:   appendHistory(s.hist, cfg.TagLabel(a.Tag), cfg.MaxHistory),
		street: s.street,
		raises: s.raises,
		depth:  s.depth + 1,
		reach:  s.reach,
	}
	if a.Move.Action == game.Raise || a.Move.Action == game.AllIn {
		next.raises++
	}
	return next
}

// sync resets the per-street raise counter when the branch has moved to a
// new street.
func (s traversalState) sync(h *game.HandState) traversalState {
	if h.Street != s.street {
		s.street = h.Street
		s.raises = 0
	}
	return s
}

// maxTraversalDepth bounds recursion: four streets of bounded raise
// chains plus folds, calls and street-closing checks.
func maxTraversalDepth(cfg *AbstractionConfig) int {
	return 4*(cfg.MaxRaisesPerStreet+4) + 8
}

// Traverse runs one external-sampling pass from the given hand for the
// traversing player and returns the traverser's counterfactual value in
// chips. Chance (the deal) is fixed in h; opponent actions are sampled
// from the current strategy; the traverser's actions are fully expanded
// with regret updates.
func (tc *TrainingContext) Traverse(ctx context.Context, h *game.HandState, traverser int, rng *rand.Rand, iter int64) (float64, error) {
	advisor := tc.advisor()
	return tc.traverse(ctx, advisor, h, traverser, rng, iter, traversalState{street: h.Street, reach: 1})
}

func (tc *TrainingContext) traverse(ctx context.Context, advisor Advisor, h *game.HandState, traverser int, rng *rand.Rand, iter int64, st traversalState) (float64, error) {
	if tc.abs.PreflopOnly && !h.Complete() && h.Street != game.Preflop {
		checkDown(h)
	}
	if h.Complete() {
		return float64(h.Payoff(traverser)), nil
	}
	if st.depth > maxTraversalDepth(&tc.abs) {
		return 0, fmt.Errorf("traversal depth %d exceeds bound; abstraction misconfigured", st.depth)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	st = st.sync(h)

	n, err := tc.nodeFor(ctx, h, st.hist, st.raises)
	if err != nil {
		return 0, err
	}
	seat := h.Active
	entry := tc.Store.Get(n.key, n.tags)
	strategy := tc.strategyAt(advisor, seat, n, entry)
	iterWeight := 1.0
	if tc.cfg.LinearAveraging {
		iterWeight = float64(iter)
	}

	if seat != traverser {
		// Opponent node: accumulate the average strategy, then sample a
		// single action with an exploration floor. Sampling the opponent
		// from their strategy already visits these nodes in proportion to
		// their reach, so the weight here is 1.
		if err := entry.AddStrategyWeight(strategy, 1, iterWeight); err != nil {
			if !errors.Is(err, errNonFinite) {
				return 0, err
			}
			tc.log.Warn().Err(err).Str("info_set", n.key.String()).Msg("discarding strategy sample")
		}
		eps := tc.cfg.Exploration
		if d := tc.cfg.ExplorationDecay; d > 0 && d < 1 {
			eps *= math.Pow(d, float64(iter))
		}
		idx := sampleIndex(rng, explore(strategy, eps))
		child := h.Clone()
		if err := child.Apply(n.actions[idx].Move); err != nil {
			return 0, fmt.Errorf("apply sampled %s: %w", n.actions[idx].Move.Action, err)
		}
		return tc.traverse(ctx, advisor, child, traverser, rng, iter, st.child(n.actions[idx], &tc.abs))
	}

	// Traverser node: expand every action, including zero-probability
	// ones, so dominated lines keep receiving regret signal. The child's
	// reach picks up the probability of the action taken.
	utils := make([]float64, len(n.actions))
	var nodeUtil float64
	for i, a := range n.actions {
		child := h.Clone()
		if err := child.Apply(a.Move); err != nil {
			return 0, fmt.Errorf("apply %s: %w", a.Move.Action, err)
		}
		cs := st.child(a, &tc.abs)
		cs.reach = st.reach * strategy[i]
		u, err := tc.traverse(ctx, advisor, child, traverser, rng, iter, cs)
		if err != nil {
			return 0, err
		}
		utils[i] = u
		nodeUtil += strategy[i] * u
	}

	regrets := make([]float64, len(n.actions))
	for i := range regrets {
		regrets[i] = utils[i] - nodeUtil
	}
	// The strategy contribution is weighted by the traverser's own reach:
	// every traverser node is expanded rather than sampled, so the reach
	// has to be carried explicitly or rare lines get over-weighted.
	if err := entry.Update(regrets, strategy, st.reach, iterWeight); err != nil {
		if !errors.Is(err, errNonFinite) {
			return 0, err
		}
		tc.log.Warn().Err(err).Str("info_set", n.key.String()).Msg("discarding regret sample")
		return nodeUtil, nil
	}

	if tc.cfg.Mode == ModeNeural {
		tc.AdvMem[traverser].Add(deep.Sample{
			Features: n.features,
			Targets:  tc.tagVector(n.actions, regrets),
			Weight:   float64(iter),
		})
		tc.PolMem.Add(deep.Sample{
			Features: n.features,
			Targets:  tc.tagVector(n.actions, strategy),
			Weight:   float64(iter) * st.reach,
		})
	}
	return nodeUtil, nil
}

// tagVector scatters per-action values into the fixed tag space.
func (tc *TrainingContext) tagVector(actions []AbstractAction, values []float64) []float64 {
	v := make([]float64, tc.abs.NumActionTags())
	for i, a := range actions {
		v[a.Tag] = values[i]
	}
	return v
}

// checkDown plays forced checks until the hand completes. Used by
// single-street abstractions where postflop play is out of scope.
func checkDown(h *game.HandState) {
	for !h.Complete() {
		if err := h.Apply(game.Move{Action: game.Check}); err != nil {
			// Betting is always reset when this runs, so a check can
			// only fail if the hand just completed.
			return
		}
	}
}

// explore mixes a uniform floor into a sampling distribution.
func explore(strategy []float64, eps float64) []float64 {
	if eps <= 0 {
		return strategy
	}
	mixed := make([]float64, len(strategy))
	u := 1.0 / float64(len(strategy))
	for i, p := range strategy {
		mixed[i] = (1-eps)*p + eps*u
	}
	return mixed
}

// sampleIndex draws an index from a distribution.
func sampleIndex(rng *rand.Rand, p []float64) int {
	r := rng.Float64()
	var cum float64
	for i, v := range p {
		cum += v
		if r < cum {
			return i
		}
	}
	return len(p) - 1
}

// appendHistory adds a tag label to a comma-joined history, keeping only
// the most recent max entries.
func appendHistory(hist, label string, max int) string {
	if hist == "" {
		return label
	}
	parts := strings.Split(hist, ",")
	parts = append(parts, label)
	if len(parts) > max {
		parts = parts[len(parts)-max:]
	}
	return strings.Join(parts, ",")
}

func historyLen(hist string) int {
	if hist == "" {
		return 0
	}
	return strings.Count(hist, ",") + 1
}
