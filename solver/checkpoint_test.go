package solver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := toyTraining()
	cfg.Iterations = 300
	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trainer.Run(context.Background(), nil))

	path := filepath.Join(t.TempDir(), "run.ckpt")
	require.NoError(t, trainer.SaveCheckpoint(path))

	resumed, err := LoadTrainer(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, trainer.Iteration(), resumed.Iteration())
	assert.Equal(t, trainer.Context().Store.Len(), resumed.Context().Store.Len())

	trainer.Context().Store.Range(func(key string, e *Entry) bool {
		k, err := ParseInfoSetKey(key)
		require.NoError(t, err)
		got, ok := resumed.Context().Store.Lookup(k)
		require.True(t, ok, "entry %q missing after load", key)
		assert.Equal(t, e.Tags, got.Tags)
		assert.Equal(t, e.RegretSum, got.RegretSum)
		assert.Equal(t, e.StrategySum, got.StrategySum)
		assert.Equal(t, e.VisitCount, got.VisitCount)
		return true
	})
}

func TestCheckpointResumeContinuesTraining(t *testing.T) {
	cfg := toyTraining()
	cfg.Iterations = 200
	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trainer.Run(context.Background(), nil))

	path := filepath.Join(t.TempDir(), "run.ckpt")
	require.NoError(t, trainer.SaveCheckpoint(path))

	resumed, err := LoadTrainer(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, resumed.SetIterations(400))

	first := int64(0)
	require.NoError(t, resumed.Run(context.Background(), func(p Progress) {
		if first == 0 {
			first = p.Iteration
		}
	}))
	assert.Equal(t, int64(201), first, "resume should continue after the saved iteration")
	assert.Equal(t, int64(400), resumed.Iteration())
}

func TestCheckpointNeuralRoundTrip(t *testing.T) {
	cfg := toyTraining()
	cfg.Mode = ModeNeural
	cfg.Iterations = 100
	cfg.UpdateEvery = 25
	cfg.BatchSize = 32
	cfg.TrainSteps = 3
	cfg.HiddenSizes = []int{16}
	cfg.AdvantageMemory = 2048
	cfg.PolicyMemory = 2048

	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trainer.Run(context.Background(), nil))

	path := filepath.Join(t.TempDir(), "deep.ckpt")
	require.NoError(t, trainer.SaveCheckpoint(path))

	resumed, err := LoadTrainer(path, zerolog.Nop())
	require.NoError(t, err)
	tc := resumed.Context()
	for p := 0; p < 2; p++ {
		assert.Equal(t, trainer.Context().AdvMem[p].Len(), tc.AdvMem[p].Len(), "advantage memory %d", p)
		require.NotNil(t, tc.AdvNets[p])
	}
	assert.Equal(t, trainer.Context().PolMem.Len(), tc.PolMem.Len())
	require.NotNil(t, tc.PolNet)

	// Restored networks must answer identically.
	features := make([]float64, FeatureDim)
	features[FeatureDim-1] = 1
	want, err := trainer.Context().PolNet.Predict(features)
	require.NoError(t, err)
	got, err := tc.PolNet.Predict(features)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadTrainerRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ckpt")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadTrainer(path, zerolog.Nop())
	require.ErrorIs(t, err, ErrCheckpointCorrupt)
}

func TestLoadTrainerRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.ckpt")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99}`), 0o644))

	_, err := LoadTrainer(path, zerolog.Nop())
	require.ErrorIs(t, err, ErrCheckpointCorrupt)
}

func TestLoadTrainerMissingFile(t *testing.T) {
	_, err := LoadTrainer(filepath.Join(t.TempDir(), "nope.ckpt"), zerolog.Nop())
	require.ErrorIs(t, err, ErrCheckpointCorrupt)
}

func TestIntervalCheckpointUsesClock(t *testing.T) {
	dir := t.TempDir()
	cfg := toyTraining()
	cfg.Iterations = 20
	cfg.CheckpointEvery = 0
	cfg.CheckpointInterval = "1m"
	cfg.CheckpointPath = filepath.Join(dir, "interval.ckpt")

	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	require.NoError(t, err)

	mock := quartz.NewMock(t)
	trainer.SetClock(mock)

	advanced := false
	require.NoError(t, trainer.Run(context.Background(), func(p Progress) {
		if p.Iteration == 5 && !advanced {
			advanced = true
			mock.Advance(2 * time.Minute)
		}
	}))

	_, err = os.Stat(cfg.CheckpointPath)
	require.NoError(t, err, "interval checkpoint not written")

	resumed, err := LoadTrainer(cfg.CheckpointPath, zerolog.Nop())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resumed.Iteration(), int64(5))
	assert.Less(t, resumed.Iteration(), int64(20))
}

func TestBlueprintSaveLoad(t *testing.T) {
	cfg := toyTraining()
	cfg.Iterations = 150
	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trainer.Run(context.Background(), nil))

	path := filepath.Join(t.TempDir(), "toy.blueprint")
	bp := trainer.Blueprint()
	require.NoError(t, bp.Save(path))

	loaded, err := LoadBlueprint(path)
	require.NoError(t, err)
	assert.Equal(t, bp.Iterations, loaded.Iterations)
	assert.Equal(t, bp.Abstraction, loaded.Abstraction)
	assert.Equal(t, len(bp.Strategies), len(loaded.Strategies))
	assert.Equal(t, bp.SmallBlind, loaded.SmallBlind)
	assert.Equal(t, bp.BigBlind, loaded.BigBlind)
}

func TestLoadBlueprintRejectsCorruption(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.blueprint")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err := LoadBlueprint(bad)
	require.ErrorIs(t, err, ErrCheckpointCorrupt)

	old := filepath.Join(dir, "old.blueprint")
	require.NoError(t, os.WriteFile(old, []byte(`{"version":42}`), 0o644))
	_, err = LoadBlueprint(old)
	require.ErrorIs(t, err, ErrCheckpointCorrupt)
}

func TestBlueprintExploitabilityMatchesContext(t *testing.T) {
	cfg := toyTraining()
	cfg.Iterations = 400
	trainer, err := NewTrainer(toyAbstraction(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, trainer.Run(context.Background(), nil))

	ctx := context.Background()
	direct, err := trainer.Context().Exploitability(ctx, 200, 5)
	require.NoError(t, err)

	viaBlueprint, err := BlueprintExploitability(ctx, trainer.Blueprint(), 200, 5)
	require.NoError(t, err)
	assert.InDelta(t, direct, viaBlueprint, 1e-6,
		"blueprint table should reproduce the live average strategy")
}
