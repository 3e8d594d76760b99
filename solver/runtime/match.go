package runtime

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dmallory/deepcfr/internal/game"
	"github.com/dmallory/deepcfr/internal/randutil"
	"github.com/dmallory/deepcfr/solver"
)

// Agent decides moves for one seat of a match.
type Agent interface {
	Name() string
	Act(ctx context.Context, state RawState) (Decision, error)
}

// PolicyAgent plays a trained policy.
type PolicyAgent struct {
	Label  string
	Policy *Policy
}

func (a *PolicyAgent) Name() string { return a.Label }

func (a *PolicyAgent) Act(ctx context.Context, state RawState) (Decision, error) {
	return a.Policy.Decide(ctx, state)
}

// RandomAgent picks uniformly among the abstract actions of its config.
// Serves as a sanity baseline for evaluation.
type RandomAgent struct {
	Label  string
	Cfg    solver.AbstractionConfig
	policy *Policy
}

// NewRandomAgent builds a uniform baseline agent. It reuses the policy
// plumbing with an empty strategy table: every lookup misses and falls
// back to uniform.
func NewRandomAgent(label string, cfg solver.AbstractionConfig, seed int64) (*RandomAgent, error) {
	bp := &solver.Blueprint{
		Abstraction: cfg,
		SmallBlind:  1,
		BigBlind:    2,
		StackDepth:  100,
		Strategies:  map[string]solver.BlueprintEntry{},
	}
	p, err := NewPolicy(bp, seed)
	if err != nil {
		return nil, err
	}
	return &RandomAgent{Label: label, Cfg: cfg, policy: p}, nil
}

func (a *RandomAgent) Name() string { return a.Label }

func (a *RandomAgent) Act(ctx context.Context, state RawState) (Decision, error) {
	return a.policy.Decide(ctx, state)
}

// MatchConfig shapes a head-to-head run.
type MatchConfig struct {
	Hands      int // deals; with Mirror each deal is played twice
	SmallBlind int
	BigBlind   int
	StackDepth int
	Seed       int64
	Mirror     bool // replay each deal with seats swapped
}

// MatchResult summarizes a head-to-head run from agent A's perspective.
type MatchResult struct {
	HandsPlayed int
	NetChipsA   int
	BBPerHandA  float64
	BBPer100A   float64
	// CI95 is the half-width of the 95%% confidence interval on
	// BBPerHandA.
	CI95 float64
}

// PlayMatch plays agent A against agent B and reports A's winnings.
// Mirrored deals reuse the same shuffle with seats swapped, which cancels
// most card luck out of the estimate.
func PlayMatch(ctx context.Context, a, b Agent, cfg MatchConfig) (MatchResult, error) {
	if cfg.Hands < 1 {
		return MatchResult{}, fmt.Errorf("match needs at least one hand")
	}
	var perHandBB []float64
	var net int

	for deal := 0; deal < cfg.Hands; deal++ {
		if err := ctx.Err(); err != nil {
			return MatchResult{}, err
		}
		games := [][2]Agent{{a, b}}
		if cfg.Mirror {
			games = append(games, [2]Agent{b, a})
		}
		for g, seats := range games {
			payoffA, err := playHand(ctx, seats, cfg, int64(deal))
			if err != nil {
				return MatchResult{}, err
			}
			if g == 1 {
				payoffA = -payoffA // result is seat 0's; A sits in seat 1
			}
			net += payoffA
			perHandBB = append(perHandBB, float64(payoffA)/float64(cfg.BigBlind))
		}
	}

	mean, std := stat.MeanStdDev(perHandBB, nil)
	ci := 1.96 * std / math.Sqrt(float64(len(perHandBB)))
	return MatchResult{
		HandsPlayed: len(perHandBB),
		NetChipsA:   net,
		BBPerHandA:  mean,
		BBPer100A:   mean * 100,
		CI95:        ci,
	}, nil
}

// playHand deals one hand (deterministic per deal index) and returns seat
// 0's payoff in chips.
func playHand(ctx context.Context, seats [2]Agent, cfg MatchConfig, deal int64) (int, error) {
	rng := randutil.Derive(cfg.Seed, int(deal))
	stack := cfg.StackDepth * cfg.BigBlind
	h, err := game.NewHand(rng, 0, [2]int{stack, stack}, cfg.SmallBlind, cfg.BigBlind)
	if err != nil {
		return 0, err
	}

	histories := [2][]string{}
	abstractions := [2]solver.AbstractionConfig{agentAbstraction(seats[0]), agentAbstraction(seats[1])}
	street := h.Street
	raisesThisStreet := 0

	for moves := 0; !h.Complete(); moves++ {
		if moves > 200 {
			return 0, fmt.Errorf("hand exceeded move bound")
		}
		if h.Street != street {
			street = h.Street
			raisesThisStreet = 0
		}
		seat := h.Active
		state := rawStateFor(h, seat, histories[seat], raisesThisStreet)

		d, err := seats[seat].Act(ctx, state)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", seats[seat].Name(), err)
		}
		mv := game.Move{Action: d.Action, Amount: d.Amount}

		// Record the move in both agents' vocabularies before applying.
		toCall := h.ToCall(seat)
		potAfterCall := h.Pot() + toCall
		for s := 0; s < 2; s++ {
			tag := abstractions[s].ClassifyMove(h.Street, h.CurrentBet, potAfterCall, mv)
			histories[s] = append(histories[s], abstractions[s].TagLabel(tag))
		}
		if mv.Action == game.Raise || mv.Action == game.AllIn {
			raisesThisStreet++
		}

		if err := h.Apply(mv); err != nil {
			return 0, fmt.Errorf("%s played illegal %s: %w", seats[seat].Name(), mv.Action, err)
		}
	}
	return h.Payoff(0), nil
}

// rawStateFor projects the engine state into the hero's query view.
func rawStateFor(h *game.HandState, seat int, history []string, raisesThisStreet int) RawState {
	opp := 1 - seat
	hole := make([]string, len(h.Players[seat].Hole))
	for i, c := range h.Players[seat].Hole {
		hole[i] = c.String()
	}
	board := make([]string, len(h.Board))
	for i, c := range h.Board {
		board[i] = c.String()
	}
	return RawState{
		Hole:             hole,
		Board:            board,
		Street:           h.Street.String(),
		Pot:              h.Pot(),
		HeroStack:        h.Players[seat].Chips,
		VillainStack:     h.Players[opp].Chips,
		HeroBet:          h.Players[seat].StreetBet,
		VillainBet:       h.Players[opp].StreetBet,
		HeroIsButton:     seat == h.Button,
		VillainAllIn:     h.Players[opp].AllIn,
		MinRaiseTo:       h.MinRaiseTo(),
		History:          history,
		RaisesThisStreet: raisesThisStreet,
	}
}

func agentAbstraction(a Agent) solver.AbstractionConfig {
	switch ag := a.(type) {
	case *PolicyAgent:
		return ag.Policy.Blueprint().Abstraction
	case *RandomAgent:
		return ag.Cfg
	default:
		return solver.DefaultAbstraction()
	}
}
