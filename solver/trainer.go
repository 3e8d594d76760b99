package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dmallory/deepcfr/internal/game"
	"github.com/dmallory/deepcfr/internal/randutil"
)

// Progress is a per-iteration report delivered to Run's callback.
type Progress struct {
	Iteration      int64
	InfoSets       int
	Exploitability float64 // big blinds per hand; negative until first eval
}

// Trainer drives alternating external-sampling traversals and the
// surrounding schedule: network retraining, checkpointing and
// exploitability probes.
type Trainer struct {
	tc    *TrainingContext
	cfg   TrainingConfig
	log   zerolog.Logger
	clock quartz.Clock

	checkpointInterval time.Duration
	nextCheckpoint     time.Time
	evalHistory        []float64
}

// NewTrainer builds a trainer with fresh state.
func NewTrainer(abs AbstractionConfig, cfg TrainingConfig, logger zerolog.Logger) (*Trainer, error) {
	tc, err := NewTrainingContext(abs, cfg)
	if err != nil {
		return nil, err
	}
	return newTrainerWithContext(tc, logger)
}

func newTrainerWithContext(tc *TrainingContext, logger zerolog.Logger) (*Trainer, error) {
	tc.log = logger
	t := &Trainer{
		tc:    tc,
		cfg:   tc.cfg,
		log:   logger,
		clock: quartz.NewReal(),
	}
	if tc.cfg.CheckpointInterval != "" {
		d, err := time.ParseDuration(tc.cfg.CheckpointInterval)
		if err != nil {
			return nil, fmt.Errorf("checkpoint interval: %w", err)
		}
		t.checkpointInterval = d
	}
	return t, nil
}

// Context exposes the training state, for evaluation and artifact export.
func (t *Trainer) Context() *TrainingContext { return t.tc }

// Iteration returns the completed iteration count.
func (t *Trainer) Iteration() int64 { return t.tc.Iteration() }

// SetClock swaps the scheduling clock. Tests install a fake clock to
// drive interval checkpoints.
func (t *Trainer) SetClock(c quartz.Clock) { t.clock = c }

// TrainingConfig returns the run configuration, including values restored
// from a checkpoint.
func (t *Trainer) TrainingConfig() TrainingConfig { return t.cfg }

// SetIterations raises or lowers the target iteration count, typically
// after resuming from a checkpoint.
func (t *Trainer) SetIterations(n int) error {
	if n < 1 {
		return fmt.Errorf("iterations %d must be positive", n)
	}
	t.cfg.Iterations = n
	t.tc.cfg.Iterations = n
	return nil
}

// EnableCheckpoints points periodic checkpoints at path every N
// iterations, overriding whatever the config or checkpoint carried.
func (t *Trainer) EnableCheckpoints(path string, every int) {
	t.cfg.CheckpointPath = path
	t.cfg.CheckpointEvery = every
	t.tc.cfg.CheckpointPath = path
	t.tc.cfg.CheckpointEvery = every
}

// Run trains until the configured iteration count or context
// cancellation. On cancellation it finishes the in-flight iteration,
// checkpoints if a path is configured, and returns the context error.
// progress may be nil.
func (t *Trainer) Run(ctx context.Context, progress func(Progress)) error {
	if t.checkpointInterval > 0 {
		t.nextCheckpoint = t.clock.Now().Add(t.checkpointInterval)
	}
	start := t.tc.Iteration()
	t.log.Info().
		Int64("start_iteration", start).
		Int("target", t.cfg.Iterations).
		Str("mode", t.cfg.Mode.String()).
		Msg("training started")

	for iter := start + 1; iter <= int64(t.cfg.Iterations); iter++ {
		if err := t.runIteration(ctx, iter); err != nil {
			if ctx.Err() != nil {
				t.checkpointNow("cancelled")
				return ctx.Err()
			}
			return err
		}
		t.tc.iteration.Store(iter)

		if t.cfg.Mode == ModeNeural && t.cfg.UpdateEvery > 0 && iter%int64(t.cfg.UpdateEvery) == 0 {
			t.retrain()
		}

		report := Progress{Iteration: iter, InfoSets: t.tc.Store.Len(), Exploitability: -1}
		if t.cfg.EvalEvery > 0 && iter%int64(t.cfg.EvalEvery) == 0 {
			report.Exploitability = t.evaluate(ctx, iter)
		}
		if progress != nil {
			progress(report)
		}

		if t.cfg.CheckpointEvery > 0 && iter%int64(t.cfg.CheckpointEvery) == 0 {
			t.checkpointNow("scheduled")
		} else if t.checkpointInterval > 0 && !t.clock.Now().Before(t.nextCheckpoint) {
			t.checkpointNow("interval")
			t.nextCheckpoint = t.clock.Now().Add(t.checkpointInterval)
		}
	}

	t.log.Info().
		Int64("iterations", t.tc.Iteration()).
		Int("info_sets", t.tc.Store.Len()).
		Msg("training finished")
	return nil
}

// runIteration performs one traversal per player per worker, each from an
// independently dealt hand.
func (t *Trainer) runIteration(ctx context.Context, iter int64) error {
	stacks := [2]int{t.cfg.StartingStack(), t.cfg.StartingStack()}

	for traverser := 0; traverser < 2; traverser++ {
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < t.cfg.Workers; w++ {
			stream := traversalStream(iter, traverser, t.cfg.Workers, w)
			g.Go(func() error {
				rng := randutil.Derive(t.cfg.Seed, int(stream))
				// Seat 0 is always the button; roles are part of the
				// seat identity so info sets never mix positions.
				h, err := game.NewHand(rng, 0, stacks, t.cfg.SmallBlind, t.cfg.BigBlind)
				if err != nil {
					return err
				}
				_, err = t.tc.Traverse(gctx, h, traverser, rng, iter)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// traversalStream numbers the derived RNG stream for one worker. Strides
// scale with the worker count so streams stay distinct across workers,
// traversers and iterations.
func traversalStream(iter int64, traverser, workers, w int) int64 {
	return iter*int64(2*workers) + int64(traverser*workers) + int64(w)
}

// retrain fits the advantage and policy networks against their memories.
func (t *Trainer) retrain() {
	for p := 0; p < 2; p++ {
		t.fitNetwork(fmt.Sprintf("advantage[%d]", p), p)
	}
	t.fitPolicy()
}

func (t *Trainer) fitNetwork(name string, player int) {
	mem := t.tc.AdvMem[player]
	if mem.Len() < t.cfg.BatchSize/4 {
		return
	}
	var loss float64
	for s := 0; s < t.cfg.TrainSteps; s++ {
		batch := mem.Batch(t.cfg.BatchSize)
		l, err := t.tc.AdvNets[player].Fit(batch)
		if err != nil {
			t.log.Warn().Err(err).Str("net", name).Msg("network fit failed, keeping previous weights")
			return
		}
		loss = l
	}
	t.log.Debug().Str("net", name).Float64("loss", loss).Int("samples", mem.Len()).Msg("retrained")
}

func (t *Trainer) fitPolicy() {
	if t.tc.PolMem.Len() < t.cfg.BatchSize/4 {
		return
	}
	var loss float64
	for s := 0; s < t.cfg.TrainSteps; s++ {
		batch := t.tc.PolMem.Batch(t.cfg.BatchSize)
		l, err := t.tc.PolNet.Fit(batch)
		if err != nil {
			t.log.Warn().Err(err).Str("net", "policy").Msg("network fit failed, keeping previous weights")
			return
		}
		loss = l
	}
	t.log.Debug().Str("net", "policy").Float64("loss", loss).Int("samples", t.tc.PolMem.Len()).Msg("retrained")
}

// evaluate probes exploitability and warns when it keeps rising, which
// usually means the abstraction or learning rate is misconfigured.
func (t *Trainer) evaluate(ctx context.Context, iter int64) float64 {
	exp, err := t.tc.Exploitability(ctx, t.cfg.EvalDeals, t.cfg.Seed+iter)
	if err != nil {
		t.log.Warn().Err(err).Msg("exploitability probe failed")
		return -1
	}
	t.log.Info().Int64("iteration", iter).Float64("exploitability_bb", exp).Msg("evaluation")

	t.evalHistory = append(t.evalHistory, exp)
	if len(t.evalHistory) >= 3 {
		last := t.evalHistory[len(t.evalHistory)-3:]
		if last[0] < last[1] && last[1] < last[2] {
			t.log.Warn().
				Float64("exploitability_bb", exp).
				Msg("exploitability rising across evaluations; check bucket counts, bet sizes and learn rate")
		}
	}
	return exp
}

func (t *Trainer) checkpointNow(reason string) {
	if t.cfg.CheckpointPath == "" {
		return
	}
	if err := t.SaveCheckpoint(t.cfg.CheckpointPath); err != nil {
		t.log.Error().Err(err).Str("path", t.cfg.CheckpointPath).Msg("checkpoint failed")
		return
	}
	t.log.Info().
		Str("path", t.cfg.CheckpointPath).
		Str("reason", reason).
		Int64("iteration", t.tc.Iteration()).
		Msg("checkpoint written")
}
