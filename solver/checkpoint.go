package solver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmallory/deepcfr/solver/deep"
)

const checkpointVersion = 1

// checkpointFile is the on-disk training snapshot: everything needed to
// resume a run exactly where it stopped.
type checkpointFile struct {
	Version     int                      `json:"version"`
	SavedAt     time.Time                `json:"saved_at"`
	Iteration   int64                    `json:"iteration"`
	Abstraction AbstractionConfig        `json:"abstraction"`
	Training    TrainingConfig           `json:"training"`
	Entries     map[string]entrySnapshot `json:"entries"`

	// Neural state, present only for deep runs.
	AdvantageMemory [2]*deep.Reservoir `json:"advantage_memory,omitempty"`
	PolicyMemory    *deep.Reservoir    `json:"policy_memory,omitempty"`
	AdvantageNets   [2]*deep.State     `json:"advantage_nets,omitempty"`
	PolicyNet       *deep.State        `json:"policy_net,omitempty"`
}

// SaveCheckpoint writes the full training state. The file is written to a
// temp sibling and renamed so readers never observe a partial artifact.
func (t *Trainer) SaveCheckpoint(path string) error {
	cp := checkpointFile{
		Version:     checkpointVersion,
		SavedAt:     time.Now().UTC(),
		Iteration:   t.tc.Iteration(),
		Abstraction: t.tc.abs,
		Training:    t.tc.cfg,
		Entries:     make(map[string]entrySnapshot, t.tc.Store.Len()),
	}
	t.tc.Store.Range(func(key string, e *Entry) bool {
		cp.Entries[key] = e.snapshot()
		return true
	})
	if t.tc.cfg.Mode == ModeNeural {
		cp.AdvantageMemory = t.tc.AdvMem
		cp.PolicyMemory = t.tc.PolMem
		for p := 0; p < 2; p++ {
			st := t.tc.AdvNets[p].State()
			cp.AdvantageNets[p] = &st
		}
		st := t.tc.PolNet.State()
		cp.PolicyNet = &st
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data via a temp file in the target directory and
// renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// LoadTrainer resumes a trainer from a checkpoint. Decode failures,
// version mismatches and inconsistent configs all fail fast with
// ErrCheckpointCorrupt.
func LoadTrainer(path string, logger zerolog.Logger) (*Trainer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCheckpointCorrupt, err)
	}
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: version %d, this build reads %d", ErrCheckpointCorrupt, cp.Version, checkpointVersion)
	}
	if err := cp.Abstraction.Validate(); err != nil {
		return nil, fmt.Errorf("%w: abstraction: %v", ErrCheckpointCorrupt, err)
	}
	if err := cp.Training.Validate(); err != nil {
		return nil, fmt.Errorf("%w: training config: %v", ErrCheckpointCorrupt, err)
	}

	tc, err := NewTrainingContext(cp.Abstraction, cp.Training)
	if err != nil {
		return nil, fmt.Errorf("%w: rebuild context: %v", ErrCheckpointCorrupt, err)
	}
	tc.iteration.Store(cp.Iteration)

	for key, snap := range cp.Entries {
		if len(snap.RegretSum) != len(snap.Tags) || len(snap.StrategySum) != len(snap.Tags) {
			return nil, fmt.Errorf("%w: entry %q has inconsistent sizes", ErrCheckpointCorrupt, key)
		}
		e := NewEntry(snap.Tags)
		copy(e.RegretSum, snap.RegretSum)
		copy(e.StrategySum, snap.StrategySum)
		e.VisitCount = snap.VisitCount
		tc.Store.restore(key, e)
	}

	if cp.Training.Mode == ModeNeural {
		if cp.AdvantageNets[0] == nil || cp.AdvantageNets[1] == nil || cp.PolicyNet == nil {
			return nil, fmt.Errorf("%w: deep checkpoint missing network state", ErrCheckpointCorrupt)
		}
		for p := 0; p < 2; p++ {
			net, err := deep.FromState(*cp.AdvantageNets[p])
			if err != nil {
				return nil, fmt.Errorf("%w: advantage net %d: %v", ErrCheckpointCorrupt, p, err)
			}
			tc.AdvNets[p] = net
			if cp.AdvantageMemory[p] != nil {
				tc.AdvMem[p] = cp.AdvantageMemory[p]
			}
		}
		net, err := deep.FromState(*cp.PolicyNet)
		if err != nil {
			return nil, fmt.Errorf("%w: policy net: %v", ErrCheckpointCorrupt, err)
		}
		tc.PolNet = net
		if cp.PolicyMemory != nil {
			tc.PolMem = cp.PolicyMemory
		}
	}

	logger.Info().
		Str("path", path).
		Int64("iteration", cp.Iteration).
		Int("info_sets", tc.Store.Len()).
		Time("saved_at", cp.SavedAt).
		Msg("checkpoint loaded")
	return newTrainerWithContext(tc, logger)
}
