package solver

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmallory/deepcfr/solver/deep"
)

const blueprintVersion = 1

// BlueprintEntry is one information set's average strategy.
type BlueprintEntry struct {
	Tags  []ActionTag `json:"tags"`
	Probs []float64   `json:"probs"`
}

// Blueprint is the playable artifact exported from a training run: the
// average strategy table, the abstraction it was trained under, and for
// deep runs the policy network. It is everything the runtime bot needs.
type Blueprint struct {
	Version     int               `json:"version"`
	GeneratedAt time.Time         `json:"generated_at"`
	Iterations  int64             `json:"iterations"`
	Mode        string            `json:"mode"`
	Abstraction AbstractionConfig `json:"abstraction"`
	SmallBlind  int               `json:"small_blind"`
	BigBlind    int               `json:"big_blind"`
	StackDepth  int               `json:"stack_depth"`

	Strategies map[string]BlueprintEntry `json:"strategies"`
	PolicyNet  *deep.State               `json:"policy_net,omitempty"`
}

// Blueprint exports the current average strategy.
func (t *Trainer) Blueprint() *Blueprint {
	bp := &Blueprint{
		Version:     blueprintVersion,
		GeneratedAt: time.Now().UTC(),
		Iterations:  t.tc.Iteration(),
		Mode:        t.tc.cfg.Mode.String(),
		Abstraction: t.tc.abs,
		SmallBlind:  t.tc.cfg.SmallBlind,
		BigBlind:    t.tc.cfg.BigBlind,
		StackDepth:  t.tc.cfg.StackDepth,
		Strategies:  make(map[string]BlueprintEntry, t.tc.Store.Len()),
	}
	t.tc.Store.Range(func(key string, e *Entry) bool {
		bp.Strategies[key] = BlueprintEntry{
			Tags:  append([]ActionTag(nil), e.Tags...),
			Probs: e.AverageStrategy(),
		}
		return true
	})
	if t.tc.cfg.Mode == ModeNeural && t.tc.PolNet != nil {
		st := t.tc.PolNet.State()
		bp.PolicyNet = &st
	}
	return bp
}

// Save writes the blueprint atomically.
func (b *Blueprint) Save(path string) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode blueprint: %w", err)
	}
	return atomicWrite(path, data)
}

// LoadBlueprint reads and validates a blueprint artifact.
func LoadBlueprint(path string) (*Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	var b Blueprint
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCheckpointCorrupt, err)
	}
	if b.Version != blueprintVersion {
		return nil, fmt.Errorf("%w: blueprint version %d, this build reads %d", ErrCheckpointCorrupt, b.Version, blueprintVersion)
	}
	if err := b.Abstraction.Validate(); err != nil {
		return nil, fmt.Errorf("%w: abstraction: %v", ErrCheckpointCorrupt, err)
	}
	if b.BigBlind < 1 || b.SmallBlind < 1 || b.StackDepth < 1 {
		return nil, fmt.Errorf("%w: invalid stakes", ErrCheckpointCorrupt)
	}
	return &b, nil
}
