package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dmallory/deepcfr/internal/deck"
	"github.com/dmallory/deepcfr/internal/evaluator"
	"github.com/dmallory/deepcfr/solver"
	"github.com/dmallory/deepcfr/solver/runtime"
)

var cli struct {
	Debug bool `help:"enable debug logging"`

	Train   TrainCmd   `cmd:"" help:"run Deep CFR training and emit a blueprint"`
	Eval    EvalCmd    `cmd:"" help:"measure exploitability of a blueprint and play it against a uniform baseline"`
	Play    PlayCmd    `cmd:"" help:"answer hand-state queries from stdin with blueprint decisions"`
	Compare CompareCmd `cmd:"" help:"play two blueprints head to head over mirrored deals"`
	Demo    DemoCmd    `cmd:"" help:"short tabular training run with sample decisions"`
}

type TrainCmd struct {
	Out        string `help:"path to write the blueprint" required:""`
	Type       string `help:"training mode (basic|deep)" enum:"basic,deep" default:"basic"`
	Profile    string `help:"abstraction profile (fast|default|competitive)" enum:"fast,default,competitive" default:"default"`
	Iterations int    `help:"number of traversal iterations" default:"0"`
	Workers    int    `help:"concurrent traversals per iteration" default:"0"`
	Seed       int64  `help:"random seed; 0 uses time seed" default:"0"`

	SmallBlind int `help:"small blind in chips" default:"0"`
	BigBlind   int `help:"big blind in chips" default:"0"`
	StackDepth int `help:"starting stacks in big blinds" default:"0"`

	CheckpointPath  string `help:"path to write periodic checkpoints"`
	CheckpointEvery int    `help:"checkpoint interval in iterations (0 disables)" default:"0"`
	CheckpointMins  int    `help:"checkpoint interval in minutes (0 disables)" default:"0"`
	EvalEvery       int    `help:"exploitability probe interval in iterations (0 disables)" default:"0"`
	EvalDeals       int    `help:"deals per exploitability probe" default:"0"`

	ResumeFrom string `help:"resume training from checkpoint file"`
	CPUProfile string `help:"write CPU profile to file"`
}

type EvalCmd struct {
	Blueprint string `help:"path to blueprint" required:""`
	Deals     int    `help:"deals for the exploitability probe" default:"2000"`
	Hands     int    `help:"hands to play against the uniform baseline (0 skips)" default:"0"`
	Seed      int64  `help:"random seed; 0 uses time seed" default:"0"`
}

type PlayCmd struct {
	Blueprint     string `help:"path to blueprint" required:""`
	Seed          int64  `help:"random seed; 0 uses time seed" default:"0"`
	Deterministic bool   `help:"always pick the highest-probability action"`
}

type CompareCmd struct {
	A     string `help:"path to blueprint A" required:""`
	B     string `help:"path to blueprint B" required:""`
	Hands int    `help:"deals to play (each played from both seats)" default:"10000"`
	Seed  int64  `help:"random seed; 0 uses time seed" default:"0"`
}

type DemoCmd struct {
	Iterations int   `help:"training iterations" default:"2000"`
	Seed       int64 `help:"random seed" default:"7"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("solver"),
		kong.Description("Deep CFR hold'em solver tooling"),
		kong.UsageOnError(),
	)

	setupLogger(cli.Debug)

	switch ctx.Command() {
	case "train":
		if err := cli.Train.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("training failed")
		}
	case "eval":
		if err := cli.Eval.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("evaluation failed")
		}
	case "play":
		if err := cli.Play.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("play failed")
		}
	case "compare":
		if err := cli.Compare.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("comparison failed")
		}
	case "demo":
		if err := cli.Demo.Run(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("demo failed")
		}
	default:
		log.Fatal().Msgf("unknown command: %s", ctx.Command())
	}
}

func setupLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}

func abstractionProfile(name string) solver.AbstractionConfig {
	switch name {
	case "fast":
		return solver.FastAbstraction()
	case "competitive":
		return solver.CompetitiveAbstraction()
	default:
		return solver.DefaultAbstraction()
	}
}

func seedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

func (cmd *TrainCmd) Run(ctx context.Context) error {
	if cmd.CPUProfile != "" {
		f, err := os.Create(cmd.CPUProfile)
		if err != nil {
			return fmt.Errorf("create cpu profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", cmd.CPUProfile).Msg("CPU profiling enabled")
	}

	var trainer *solver.Trainer
	var err error

	if cmd.ResumeFrom != "" {
		trainer, err = solver.LoadTrainer(cmd.ResumeFrom, log.Logger)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if cmd.Iterations > 0 {
			if err := trainer.SetIterations(cmd.Iterations); err != nil {
				return err
			}
		}
		if cmd.CheckpointPath != "" && cmd.CheckpointEvery > 0 {
			trainer.EnableCheckpoints(cmd.CheckpointPath, cmd.CheckpointEvery)
		}
		resumed := trainer.TrainingConfig()
		if cmd.Type != "" && cmd.Type != resumed.Mode.String() {
			log.Warn().Str("requested", cmd.Type).Str("checkpoint", resumed.Mode.String()).Msg("cannot change mode when resuming from checkpoint; keeping original")
		}
		if cmd.Profile != "default" {
			log.Warn().Str("profile", cmd.Profile).Msg("cannot change abstraction when resuming from checkpoint; keeping original")
		}
		log.Info().
			Int("iterations", resumed.Iterations).
			Int64("resume_iteration", trainer.Iteration()).
			Str("mode", resumed.Mode.String()).
			Str("checkpoint", cmd.ResumeFrom).
			Msg("resuming training run")
	} else {
		mode, err := solver.ParseMode(cmd.Type)
		if err != nil {
			return err
		}
		abs := abstractionProfile(cmd.Profile)
		train := solver.DefaultTrainingConfig()
		train.Mode = mode
		train.Seed = seedOrNow(cmd.Seed)

		if cmd.Iterations > 0 {
			train.Iterations = cmd.Iterations
		}
		if cmd.Workers > 0 {
			train.Workers = cmd.Workers
		}
		if cmd.SmallBlind > 0 {
			train.SmallBlind = cmd.SmallBlind
		}
		if cmd.BigBlind > 0 {
			train.BigBlind = cmd.BigBlind
		}
		if cmd.StackDepth > 0 {
			train.StackDepth = cmd.StackDepth
		}
		if cmd.CheckpointPath != "" {
			train.CheckpointPath = cmd.CheckpointPath
		}
		if cmd.CheckpointEvery > 0 {
			train.CheckpointEvery = cmd.CheckpointEvery
		}
		if cmd.CheckpointMins > 0 {
			train.CheckpointInterval = (time.Duration(cmd.CheckpointMins) * time.Minute).String()
		}
		if cmd.EvalEvery > 0 {
			train.EvalEvery = cmd.EvalEvery
		}
		if cmd.EvalDeals > 0 {
			train.EvalDeals = cmd.EvalDeals
		}

		trainer, err = solver.NewTrainer(abs, train, log.Logger)
		if err != nil {
			return err
		}
		log.Info().
			Int("iterations", train.Iterations).
			Int("workers", train.Workers).
			Str("mode", train.Mode.String()).
			Str("profile", cmd.Profile).
			Int64("seed", train.Seed).
			Msg("starting training run")
	}

	start := time.Now()
	progress := func(p solver.Progress) {
		ev := log.Info().Int64("iteration", p.Iteration).Int("infosets", p.InfoSets)
		if p.Exploitability >= 0 {
			ev = ev.Float64("exploitability_bb", p.Exploitability)
		}
		ev.Msg("progress")
	}

	if err := trainer.Run(ctx, progress); err != nil {
		return err
	}

	bp := trainer.Blueprint()
	log.Info().
		Dur("duration", time.Since(start)).
		Int("infosets", len(bp.Strategies)).
		Msg("training completed")

	if err := bp.Save(cmd.Out); err != nil {
		return fmt.Errorf("save blueprint: %w", err)
	}
	log.Info().Str("path", cmd.Out).Msg("blueprint saved")
	return nil
}

func (cmd *EvalCmd) Run(ctx context.Context) error {
	bp, err := solver.LoadBlueprint(cmd.Blueprint)
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	log.Info().
		Str("generated", bp.GeneratedAt.Format(time.RFC3339)).
		Int64("iterations", bp.Iterations).
		Str("mode", bp.Mode).
		Int("infosets", len(bp.Strategies)).
		Msg("blueprint loaded")

	seed := seedOrNow(cmd.Seed)

	if cmd.Deals > 0 {
		exp, err := solver.BlueprintExploitability(ctx, bp, cmd.Deals, seed)
		if err != nil {
			return fmt.Errorf("exploitability: %w", err)
		}
		log.Info().Int("deals", cmd.Deals).Float64("exploitability_bb", exp).Msg("exploitability probe")
	}

	if cmd.Hands > 0 {
		policy, err := runtime.NewPolicy(bp, seed)
		if err != nil {
			return err
		}
		hero := &runtime.PolicyAgent{Label: "blueprint", Policy: policy}
		baseline, err := runtime.NewRandomAgent("uniform", bp.Abstraction, seed+1)
		if err != nil {
			return err
		}
		res, err := runtime.PlayMatch(ctx, hero, baseline, runtime.MatchConfig{
			Hands:      cmd.Hands,
			SmallBlind: bp.SmallBlind,
			BigBlind:   bp.BigBlind,
			StackDepth: bp.StackDepth,
			Seed:       seed,
			Mirror:     true,
		})
		if err != nil {
			return fmt.Errorf("baseline match: %w", err)
		}
		log.Info().
			Int("hands", res.HandsPlayed).
			Float64("bb_per_100", res.BBPer100A).
			Float64("ci95_bb_per_hand", res.CI95).
			Int("net_chips", res.NetChipsA).
			Msg("blueprint vs uniform baseline")
	}
	return nil
}

// Run reads one JSON RawState per line from stdin and writes one JSON
// decision per line to stdout.
func (cmd *PlayCmd) Run(ctx context.Context) error {
	policy, err := runtime.Load(cmd.Blueprint, seedOrNow(cmd.Seed))
	if err != nil {
		return fmt.Errorf("load blueprint: %w", err)
	}
	log.Info().Str("blueprint", cmd.Blueprint).Msg("ready for queries")

	dec := json.NewDecoder(bufio.NewReader(os.Stdin))
	enc := json.NewEncoder(os.Stdout)
	for {
		var state runtime.RawState
		if err := dec.Decode(&state); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode query: %w", err)
		}
		if cmd.Deterministic {
			state.Deterministic = true
		}
		d, err := policy.Decide(ctx, state)
		if err != nil {
			if encErr := enc.Encode(map[string]string{"error": err.Error()}); encErr != nil {
				return encErr
			}
			continue
		}
		resp := playResponse{
			Action: d.Action.String(),
			Amount: d.Amount,
			Tag:    policy.Blueprint().Abstraction.TagLabel(d.Tag),
			Probs:  d.Probs,
		}
		for _, a := range d.Actions {
			resp.Actions = append(resp.Actions, policy.Blueprint().Abstraction.TagLabel(a.Tag))
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}

type playResponse struct {
	Action  string    `json:"action"`
	Amount  int       `json:"amount,omitempty"`
	Tag     string    `json:"tag"`
	Actions []string  `json:"actions"`
	Probs   []float64 `json:"probs"`
}

func (cmd *CompareCmd) Run(ctx context.Context) error {
	seed := seedOrNow(cmd.Seed)
	pa, err := runtime.Load(cmd.A, seed)
	if err != nil {
		return fmt.Errorf("load blueprint A: %w", err)
	}
	pb, err := runtime.Load(cmd.B, seed+1)
	if err != nil {
		return fmt.Errorf("load blueprint B: %w", err)
	}
	bpA := pa.Blueprint()
	bpB := pb.Blueprint()
	if bpA.BigBlind != bpB.BigBlind || bpA.SmallBlind != bpB.SmallBlind || bpA.StackDepth != bpB.StackDepth {
		return fmt.Errorf("blueprints trained at different stakes (%d/%d/%dbb vs %d/%d/%dbb)",
			bpA.SmallBlind, bpA.BigBlind, bpA.StackDepth,
			bpB.SmallBlind, bpB.BigBlind, bpB.StackDepth)
	}

	agentA := &runtime.PolicyAgent{Label: "A", Policy: pa}
	agentB := &runtime.PolicyAgent{Label: "B", Policy: pb}
	res, err := runtime.PlayMatch(ctx, agentA, agentB, runtime.MatchConfig{
		Hands:      cmd.Hands,
		SmallBlind: bpA.SmallBlind,
		BigBlind:   bpA.BigBlind,
		StackDepth: bpA.StackDepth,
		Seed:       seed,
		Mirror:     true,
	})
	if err != nil {
		return err
	}
	log.Info().
		Int("hands", res.HandsPlayed).
		Float64("a_bb_per_100", res.BBPer100A).
		Float64("ci95_bb_per_hand", res.CI95).
		Int("a_net_chips", res.NetChipsA).
		Msg("comparison complete")
	if res.CI95 > 0 && (res.BBPerHandA > res.CI95 || res.BBPerHandA < -res.CI95) {
		winner := "A"
		if res.BBPerHandA < 0 {
			winner = "B"
		}
		log.Info().Str("winner", winner).Msg("difference is significant at 95%")
	} else {
		log.Info().Msg("no significant difference at 95%")
	}
	return nil
}

// Run trains a small tabular strategy and prints a few decisions so new
// users can see the pipeline end to end without a long run.
func (cmd *DemoCmd) Run(ctx context.Context) error {
	abs := solver.FastAbstraction()
	train := solver.DefaultTrainingConfig()
	train.Iterations = cmd.Iterations
	train.Seed = cmd.Seed
	train.StackDepth = 25
	train.CheckpointEvery = 0
	train.EvalEvery = cmd.Iterations / 2
	train.EvalDeals = 200

	trainer, err := solver.NewTrainer(abs, train, log.Logger)
	if err != nil {
		return err
	}
	every := int64(max(cmd.Iterations/4, 1))
	progress := func(p solver.Progress) {
		if p.Iteration%every == 0 {
			log.Info().Int64("iteration", p.Iteration).Int("infosets", p.InfoSets).Msg("progress")
		}
	}
	if err := trainer.Run(ctx, progress); err != nil {
		return err
	}

	policy, err := runtime.NewPolicy(trainer.Blueprint(), cmd.Seed)
	if err != nil {
		return err
	}

	queries := []struct {
		name  string
		state runtime.RawState
	}{
		{"premium pair on the button", runtime.RawState{
			Hole: []string{"As", "Ah"}, Street: "preflop",
			Pot: 3, HeroStack: 49, VillainStack: 48, HeroBet: 1, VillainBet: 2,
			HeroIsButton: true, Deterministic: true,
		}},
		{"junk on the button", runtime.RawState{
			Hole: []string{"7d", "2c"}, Street: "preflop",
			Pot: 3, HeroStack: 49, VillainStack: 48, HeroBet: 1, VillainBet: 2,
			HeroIsButton: true, Deterministic: true,
		}},
		{"top pair facing a bet", runtime.RawState{
			Hole: []string{"Kd", "Qs"}, Board: []string{"Kh", "8c", "3d"}, Street: "flop",
			Pot: 10, HeroStack: 47, VillainStack: 43, HeroBet: 0, VillainBet: 4,
			HeroIsButton: false, History: []string{"c", "x"}, Deterministic: true,
		}},
	}
	for _, q := range queries {
		d, err := policy.Decide(ctx, q.state)
		if err != nil {
			log.Warn().Err(err).Str("query", q.name).Msg("decision failed")
			continue
		}
		ev := log.Info().
			Str("query", q.name).
			Str("action", d.Action.String()).
			Int("amount", d.Amount).
			Floats64("probs", d.Probs)
		if len(q.state.Board) > 0 {
			ev = ev.Str("hand", describeHand(q.state.Hole, q.state.Board))
		}
		ev.Msg("decision")
	}
	return nil
}

// describeHand names the hero's made hand for demo playback, e.g. "two
// pair". Only meaningful once a board is out.
func describeHand(hole, board []string) string {
	cards := make([]deck.Card, 0, len(hole)+len(board))
	for _, s := range append(append([]string{}, hole...), board...) {
		c, err := deck.Parse(s)
		if err != nil {
			return "unknown"
		}
		cards = append(cards, c)
	}
	return evaluator.Describe(cards[:len(hole)], cards[len(hole):])
}
