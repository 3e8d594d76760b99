package solver

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dmallory/deepcfr/internal/game"
)

// toyAbstraction is a single-street push/limp game small enough for a
// test run to approach equilibrium.
func toyAbstraction() AbstractionConfig {
	return AbstractionConfig{
		PreflopBuckets:     8,
		PostflopBuckets:    1,
		EquitySamples:      10,
		IncludeAllIn:       true,
		PotThresholds:      []int{2, 4},
		ToCallThresholds:   []int{1, 2, 4},
		MaxRaisesPerStreet: 1,
		MaxHistory:         6,
		PreflopOnly:        true,
	}
}

func toyTraining() TrainingConfig {
	cfg := DefaultTrainingConfig()
	cfg.Iterations = 1500
	cfg.Seed = 11
	cfg.Workers = 2
	cfg.SmallBlind = 1
	cfg.BigBlind = 2
	cfg.StackDepth = 4
	cfg.Exploration = 0.1
	cfg.CheckpointEvery = 0
	cfg.EvalEvery = 0
	return cfg
}

func TestTrainerConvergesOnToyGame(t *testing.T) {
	trainer, err := NewTrainer(toyAbstraction(), toyTraining(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	baseline, err := trainer.Context().Exploitability(ctx, 300, 99)
	if err != nil {
		t.Fatalf("baseline exploitability: %v", err)
	}

	reports := 0
	if err := trainer.Run(ctx, func(p Progress) { reports++ }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if reports != toyTraining().Iterations {
		t.Errorf("progress reported %d times, want %d", reports, toyTraining().Iterations)
	}
	if trainer.Iteration() != int64(toyTraining().Iterations) {
		t.Errorf("iteration = %d, want %d", trainer.Iteration(), toyTraining().Iterations)
	}
	if trainer.Context().Store.Len() == 0 {
		t.Fatal("no information sets created")
	}

	trained, err := trainer.Context().Exploitability(ctx, 300, 99)
	if err != nil {
		t.Fatalf("trained exploitability: %v", err)
	}
	if trained >= baseline {
		t.Errorf("exploitability did not improve: %.3f bb before, %.3f bb after", baseline, trained)
	}
	if trained > 1.2 {
		t.Errorf("trained exploitability %.3f bb still far from equilibrium", trained)
	}
}

// With one big blind of effective stack the big blind is all-in from the
// forced post, so the small blind's only decision is to jam the rest of
// the stack in or fold: a pure jam/fold game. Committing risks 1 chip to
// win 3 and needs 25% equity; the worst heads-up hand holds about 32%
// against a random hand, so the closed-form equilibrium commits every
// hand. The band [0.9, 1.0] leaves room for early-iteration noise.
func TestJamFoldEquilibriumCommitsEveryBucket(t *testing.T) {
	abs := toyAbstraction()
	abs.PreflopBuckets = 2

	cfg := toyTraining()
	cfg.Iterations = 10000
	cfg.StackDepth = 1

	trainer, err := NewTrainer(abs, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := trainer.Run(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries := 0
	trainer.Context().Store.Range(func(key string, e *Entry) bool {
		k, err := ParseInfoSetKey(key)
		if err != nil {
			t.Fatalf("bad key %q: %v", key, err)
		}
		if k.Player != 0 {
			// The big blind is all-in from the post and never acts.
			t.Errorf("big blind has a decision point %s", key)
			return true
		}
		entries++
		avg := e.AverageStrategy()
		var commit float64
		for i, tag := range e.Tags {
			if tag == TagCall {
				commit = avg[i]
			}
		}
		if commit < 0.9 {
			t.Errorf("bucket %d commits %.3f, want at least 0.9", k.Bucket, commit)
		}
		return true
	})
	if entries != 2 {
		t.Errorf("small blind has %d decision points, want one per bucket", entries)
	}
}

func TestTrainedStrategyRanksHands(t *testing.T) {
	trainer, err := NewTrainer(toyAbstraction(), toyTraining(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := trainer.Run(ctx, nil); err != nil {
		t.Fatalf("run: %v", err)
	}

	mapper := trainer.Context().Mapper
	aces, err := mapper.HoleBucket(ctx, game.Preflop, cards(t, "As Ah"), nil)
	if err != nil {
		t.Fatal(err)
	}
	junk, err := mapper.HoleBucket(ctx, game.Preflop, cards(t, "7d 2c"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if aces == junk {
		t.Fatal("abstraction too coarse to separate AA from 72o")
	}

	// Button's opening decision, one key per strength bucket.
	jamProb := map[int]float64{}
	trainer.Context().Store.Range(func(key string, e *Entry) bool {
		k, err := ParseInfoSetKey(key)
		if err != nil || k.Player != 0 || k.History != "" {
			return true
		}
		avg := e.AverageStrategy()
		for i, tag := range e.Tags {
			if tag == toyAbstraction().allInTag() {
				jamProb[k.Bucket] = avg[i]
			}
		}
		return true
	})

	aaJam, ok := jamProb[aces]
	if !ok {
		t.Fatalf("no opening entry for bucket %d", aces)
	}
	junkJam, ok := jamProb[junk]
	if !ok {
		t.Fatalf("no opening entry for bucket %d", junk)
	}
	if aaJam <= junkJam {
		t.Errorf("AA jams %.3f, 72o jams %.3f; want premium hands to jam more", aaJam, junkJam)
	}
}

func TestTrainerNeuralSmoke(t *testing.T) {
	cfg := toyTraining()
	cfg.Mode = ModeNeural
	cfg.Iterations = 200
	cfg.UpdateEvery = 50
	cfg.BatchSize = 32
	cfg.TrainSteps = 5
	cfg.HiddenSizes = []int{16}
	cfg.AdvantageMemory = 4096
	cfg.PolicyMemory = 4096

	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := trainer.Run(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	tc := trainer.Context()
	if tc.Store.Len() == 0 {
		t.Error("neural run created no information sets")
	}
	for p := 0; p < 2; p++ {
		if tc.AdvMem[p].Len() == 0 {
			t.Errorf("advantage memory %d empty", p)
		}
	}
	if tc.PolMem.Len() == 0 {
		t.Error("policy memory empty")
	}
}

func TestTrainerHonorsCancellation(t *testing.T) {
	cfg := toyTraining()
	cfg.Iterations = 1 << 30

	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := 0
	err = trainer.Run(ctx, func(p Progress) {
		done++
		if done == 10 {
			cancel()
		}
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if trainer.Iteration() < 10 {
		t.Errorf("stopped at iteration %d before cancellation point", trainer.Iteration())
	}
}

func TestTraversalStreamsUnique(t *testing.T) {
	const workers = 128
	seen := map[int64]bool{}
	for iter := int64(1); iter <= 3; iter++ {
		for traverser := 0; traverser < 2; traverser++ {
			for w := 0; w < workers; w++ {
				s := traversalStream(iter, traverser, workers, w)
				if seen[s] {
					t.Fatalf("stream %d reused at iteration %d traverser %d worker %d", s, iter, traverser, w)
				}
				seen[s] = true
			}
		}
	}
}

func TestTrainerRejectsBadConfig(t *testing.T) {
	cfg := toyTraining()
	cfg.Workers = 0
	if _, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop()); err == nil {
		t.Error("accepted zero workers")
	}

	cfg = toyTraining()
	cfg.CheckpointInterval = "not-a-duration"
	if _, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop()); err == nil {
		t.Error("accepted malformed checkpoint interval")
	}
}

func TestBlueprintExport(t *testing.T) {
	cfg := toyTraining()
	cfg.Iterations = 200
	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := trainer.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	bp := trainer.Blueprint()
	if bp.Iterations != 200 {
		t.Errorf("blueprint iterations = %d, want 200", bp.Iterations)
	}
	if len(bp.Strategies) != trainer.Context().Store.Len() {
		t.Errorf("blueprint has %d strategies, store has %d", len(bp.Strategies), trainer.Context().Store.Len())
	}
	for key, s := range bp.Strategies {
		if len(s.Tags) != len(s.Probs) {
			t.Fatalf("entry %q: %d tags, %d probs", key, len(s.Tags), len(s.Probs))
		}
		var total float64
		for _, p := range s.Probs {
			if p < 0 {
				t.Fatalf("entry %q has negative probability", key)
			}
			total += p
		}
		if total < 0.999 || total > 1.001 {
			t.Fatalf("entry %q probabilities sum to %v", key, total)
		}
		if !strings.HasPrefix(key, "p") {
			t.Fatalf("unexpected key format %q", key)
		}
	}
}
