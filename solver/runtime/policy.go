// Package runtime answers strategy queries from a trained artifact. It is
// the read-only side of the solver: no accumulators, no training state,
// just "given this situation, what does the blueprint do".
package runtime

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"strings"
	"sync"

	"github.com/dmallory/deepcfr/internal/deck"
	"github.com/dmallory/deepcfr/internal/game"
	"github.com/dmallory/deepcfr/internal/randutil"
	"github.com/dmallory/deepcfr/solver"
	"github.com/dmallory/deepcfr/solver/deep"
)

// RawState is the live-game boundary: an unabstracted description of the
// hero's decision point, validated before anything else happens.
type RawState struct {
	Hole   []string `json:"hole"`
	Board  []string `json:"board"`
	Street string   `json:"street"`

	// Pot is total chips committed by both players, including the
	// current street's bets.
	Pot          int  `json:"pot"`
	HeroStack    int  `json:"hero_stack"`
	VillainStack int  `json:"villain_stack"`
	HeroBet      int  `json:"hero_bet"`
	VillainBet   int  `json:"villain_bet"`
	HeroIsButton bool `json:"hero_is_button"`
	VillainAllIn bool `json:"villain_all_in"`

	// MinRaiseTo overrides the minimum raise target when the caller
	// tracks it; zero derives a big-blind minimum.
	MinRaiseTo int `json:"min_raise_to,omitempty"`

	// History is the abstract action tags observed this hand, oldest
	// first, using the blueprint's tag labels.
	History []string `json:"history"`

	// RaisesThisStreet is how many raises the current street has seen,
	// used to honor the abstraction's raise cap.
	RaisesThisStreet int `json:"raises_this_street,omitempty"`

	// Deterministic picks the highest-probability action instead of
	// sampling.
	Deterministic bool `json:"deterministic,omitempty"`
}

// Decision is the answer to a query: a concrete engine move, the abstract
// tag it came from, and the distribution it was drawn from (indexed like
// Actions).
type Decision struct {
	Action  game.Action
	Amount  int
	Tag     solver.ActionTag
	Actions []solver.AbstractAction
	Probs   []float64
}

// Policy serves decisions from a blueprint. Safe for concurrent use.
type Policy struct {
	bp     *solver.Blueprint
	mapper *solver.Mapper
	polNet *deep.Network

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewPolicy builds a policy from a loaded blueprint.
func NewPolicy(bp *solver.Blueprint, seed int64) (*Policy, error) {
	mapper, err := solver.NewMapper(bp.Abstraction)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		bp:     bp,
		mapper: mapper,
		rng:    randutil.New(seed),
	}
	if bp.PolicyNet != nil {
		net, err := deep.FromState(*bp.PolicyNet)
		if err != nil {
			// A broken embedded network degrades to the table.
			p.polNet = nil
		} else {
			p.polNet = net
		}
	}
	return p, nil
}

// Load reads a blueprint artifact and builds a policy over it.
func Load(path string, seed int64) (*Policy, error) {
	bp, err := solver.LoadBlueprint(path)
	if err != nil {
		return nil, err
	}
	return NewPolicy(bp, seed)
}

// Blueprint returns the underlying artifact.
func (p *Policy) Blueprint() *solver.Blueprint { return p.bp }

// Decide validates the raw state, abstracts it, looks up the average
// strategy, renormalizes it over the live legal actions and selects one.
// The returned move is always drawn from the live legal set.
func (p *Policy) Decide(ctx context.Context, state RawState) (Decision, error) {
	h, err := p.stateToHand(state)
	if err != nil {
		return Decision{}, err
	}

	hist := p.compressHistory(state.History)
	key, actions, features, err := solver.DescribeDecision(ctx, p.mapper, h, hist, state.RaisesThisStreet, p.bp.StackDepth*p.bp.BigBlind)
	if err != nil {
		return Decision{}, err
	}

	probs := p.strategyFor(key, actions, features)

	var idx int
	if state.Deterministic {
		for i := range probs {
			if probs[i] > probs[idx] {
				idx = i
			}
		}
	} else {
		p.mu.Lock()
		idx = sampleIndex(p.rng, probs)
		p.mu.Unlock()
	}

	chosen := actions[idx]
	amount := chosen.Move.Amount
	if chosen.Move.Action == game.AllIn {
		amount = h.MaxRaiseTo(h.Active)
	}
	return Decision{
		Action:  chosen.Move.Action,
		Amount:  amount,
		Tag:     chosen.Tag,
		Actions: actions,
		Probs:   probs,
	}, nil
}

// strategyFor resolves the distribution over the legal actions: policy
// network first when embedded, then the blueprint table, then uniform for
// never-visited information sets. Whatever the source, the result is
// renormalized over the live legal set.
func (p *Policy) strategyFor(key solver.InfoSetKey, actions []solver.AbstractAction, features []float64) []float64 {
	if p.polNet != nil {
		if pred, err := p.polNet.Predict(features); err == nil {
			probs := make([]float64, len(actions))
			ok := true
			for i, a := range actions {
				if int(a.Tag) >= len(pred) {
					ok = false
					break
				}
				if pred[a.Tag] > 0 {
					probs[i] = pred[a.Tag]
				}
			}
			if ok && renormalize(probs) {
				return probs
			}
		}
	}

	if entry, found := p.bp.Strategies[key.String()]; found {
		probs := make([]float64, len(actions))
		byTag := make(map[solver.ActionTag]float64, len(entry.Tags))
		for i, tag := range entry.Tags {
			if i < len(entry.Probs) {
				byTag[tag] = entry.Probs[i]
			}
		}
		for i, a := range actions {
			probs[i] = byTag[a.Tag]
		}
		if renormalize(probs) {
			return probs
		}
	}

	probs := make([]float64, len(actions))
	for i := range probs {
		probs[i] = 1.0 / float64(len(probs))
	}
	return probs
}

// stateToHand validates the raw state and shapes it into the engine view
// the abstraction reads. The hero is the active seat; seat 0 is always
// the button, matching training.
func (p *Policy) stateToHand(state RawState) (*game.HandState, error) {
	hole, err := parseCardList(state.Hole, 2, 2, "hole")
	if err != nil {
		return nil, err
	}
	board, err := parseCardList(state.Board, 0, 5, "board")
	if err != nil {
		return nil, err
	}

	var street game.Street
	switch strings.ToLower(state.Street) {
	case "preflop":
		street = game.Preflop
	case "flop":
		street = game.Flop
	case "turn":
		street = game.Turn
	case "river":
		street = game.River
	default:
		return nil, fmt.Errorf("%w: unknown street %q", solver.ErrAbstraction, state.Street)
	}

	if state.HeroStack < 0 || state.VillainStack < 0 || state.HeroBet < 0 || state.VillainBet < 0 {
		return nil, fmt.Errorf("%w: negative chip amount", solver.ErrAbstraction)
	}
	if state.Pot < state.HeroBet+state.VillainBet {
		return nil, fmt.Errorf("%w: pot %d smaller than street bets %d+%d",
			solver.ErrAbstraction, state.Pot, state.HeroBet, state.VillainBet)
	}
	seen := map[deck.Card]bool{}
	for _, c := range append(append([]deck.Card{}, hole...), board...) {
		if seen[c] {
			return nil, fmt.Errorf("%w: duplicate card %s", solver.ErrAbstraction, c)
		}
		seen[c] = true
	}

	hero, villain := 0, 1
	if !state.HeroIsButton {
		hero, villain = 1, 0
	}

	h := &game.HandState{
		Button:     0,
		Street:     street,
		Board:      board,
		Active:     hero,
		SmallBlind: p.bp.SmallBlind,
		BigBlind:   p.bp.BigBlind,
		CurrentBet: maxInt(state.HeroBet, state.VillainBet),
		MinRaise:   p.bp.BigBlind,
	}
	if state.MinRaiseTo > 0 {
		h.MinRaise = state.MinRaiseTo - h.CurrentBet
		if h.MinRaise < 1 {
			h.MinRaise = 1
		}
	}

	// Distribute prior-street commitments so Pot() matches; only the sum
	// feeds the abstraction.
	prior := state.Pot - state.HeroBet - state.VillainBet
	h.Players[hero] = game.Player{
		Chips:     state.HeroStack,
		Hole:      hole,
		StreetBet: state.HeroBet,
		TotalBet:  state.HeroBet + prior/2,
	}
	h.Players[villain] = game.Player{
		Chips:     state.VillainStack,
		StreetBet: state.VillainBet,
		TotalBet:  state.VillainBet + prior - prior/2,
		AllIn:     state.VillainAllIn || state.VillainStack == 0,
	}
	return h, nil
}

// compressHistory caps the observed tag history the same way training
// does.
func (p *Policy) compressHistory(history []string) string {
	max := p.bp.Abstraction.MaxHistory
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return strings.Join(history, ",")
}

func parseCardList(in []string, minLen, maxLen int, what string) ([]deck.Card, error) {
	if len(in) < minLen || len(in) > maxLen {
		return nil, fmt.Errorf("%w: %s has %d cards", solver.ErrAbstraction, what, len(in))
	}
	cards := make([]deck.Card, 0, len(in))
	for _, s := range in {
		c, err := deck.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", solver.ErrAbstraction, what, err)
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func renormalize(p []float64) bool {
	var total float64
	for _, v := range p {
		total += v
	}
	if total <= 0 {
		return false
	}
	for i := range p {
		p[i] /= total
	}
	return true
}

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

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
