package solver

import (
	"fmt"
)

// Mode selects the value estimator used during training and play.
type Mode int

const (
	// ModeTabular uses the info-set table directly.
	ModeTabular Mode = iota
	// ModeNeural regresses advantages and the average policy with
	// neural networks, falling back to tabular when unavailable.
	ModeNeural
)

// String returns the CLI name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeTabular:
		return "basic"
	case ModeNeural:
		return "deep"
	default:
		return "unknown"
	}
}

// ParseMode converts a CLI mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "basic", "tabular":
		return ModeTabular, nil
	case "deep", "neural":
		return ModeNeural, nil
	default:
		return 0, fmt.Errorf("unknown mode %q (want basic or deep)", s)
	}
}

// AbstractionConfig controls how game states collapse into buckets and
// which raise sizes the solver considers. Two strategies trained with
// different abstractions are not comparable, so the config is embedded in
// every artifact and checked on load.
type AbstractionConfig struct {
	// PreflopBuckets groups the 169 canonical starting hands into
	// strength tiers. 169 keeps every class distinct.
	PreflopBuckets int `json:"preflop_buckets"`

	// PostflopBuckets is the number of equity-percentile bins used on
	// the flop, turn and river.
	PostflopBuckets int `json:"postflop_buckets"`

	// EquitySamples is the Monte Carlo rollout count per postflop
	// bucket lookup.
	EquitySamples int `json:"equity_samples"`

	// PreflopRaises are raise targets as multiples of the bet faced,
	// applied preflop. PostflopBets are bet/raise sizes as fractions of
	// the pot after a call. All-in is always available on top when
	// IncludeAllIn is set.
	PreflopRaises []float64 `json:"preflop_raises"`
	PostflopBets  []float64 `json:"postflop_bets"`
	IncludeAllIn  bool      `json:"include_all_in"`

	// PotThresholds and ToCallThresholds bucket pot size and the amount
	// to call (both in big blinds) for the info-set key.
	PotThresholds    []int `json:"pot_thresholds"`
	ToCallThresholds []int `json:"to_call_thresholds"`

	// MaxRaisesPerStreet caps raises within one street so the betting
	// tree stays finite under the abstraction.
	MaxRaisesPerStreet int `json:"max_raises_per_street"`

	// MaxHistory caps the number of abstract action tags carried in the
	// info-set key.
	MaxHistory int `json:"max_history"`

	// PreflopOnly restricts hands to a single street with an automatic
	// runout, for small test games.
	PreflopOnly bool `json:"preflop_only,omitempty"`
}

// DefaultAbstraction returns a mid-sized abstraction suitable for
// overnight tabular runs.
func DefaultAbstraction() AbstractionConfig {
	return AbstractionConfig{
		PreflopBuckets:     169,
		PostflopBuckets:    10,
		EquitySamples:      400,
		PreflopRaises:      []float64{2.5, 3.5},
		PostflopBets:       []float64{0.5, 1.0},
		IncludeAllIn:       true,
		PotThresholds:      []int{4, 8, 16, 32, 64},
		ToCallThresholds:   []int{1, 2, 4, 8, 16},
		MaxRaisesPerStreet: 4,
		MaxHistory:         12,
	}
}

// FastAbstraction trades fidelity for speed: coarse buckets, one raise
// size. Used by the demo and by tests.
func FastAbstraction() AbstractionConfig {
	c := DefaultAbstraction()
	c.PreflopBuckets = 24
	c.PostflopBuckets = 5
	c.EquitySamples = 120
	c.PreflopRaises = []float64{3.0}
	c.PostflopBets = []float64{1.0}
	c.MaxRaisesPerStreet = 2
	return c
}

// CompetitiveAbstraction is the richest built-in profile.
func CompetitiveAbstraction() AbstractionConfig {
	c := DefaultAbstraction()
	c.PostflopBuckets = 20
	c.EquitySamples = 1000
	c.PreflopRaises = []float64{2.5, 3.0, 5.0}
	c.PostflopBets = []float64{0.35, 0.7, 1.1, 2.3}
	c.MaxRaisesPerStreet = 6
	return c
}

// Validate checks the abstraction for usable values.
func (c AbstractionConfig) Validate() error {
	if c.PreflopBuckets < 2 || c.PreflopBuckets > 169 {
		return fmt.Errorf("preflop buckets %d out of range [2,169]", c.PreflopBuckets)
	}
	if c.PostflopBuckets < 1 {
		return fmt.Errorf("postflop buckets %d must be positive", c.PostflopBuckets)
	}
	if c.EquitySamples < 1 {
		return fmt.Errorf("equity samples %d must be positive", c.EquitySamples)
	}
	for _, r := range c.PreflopRaises {
		if r <= 1 {
			return fmt.Errorf("preflop raise multiple %.2f must exceed 1", r)
		}
	}
	for _, f := range c.PostflopBets {
		if f <= 0 {
			return fmt.Errorf("postflop bet fraction %.2f must be positive", f)
		}
	}
	if len(c.PreflopRaises) == 0 && len(c.PostflopBets) == 0 && !c.IncludeAllIn {
		return fmt.Errorf("no raise sizes configured")
	}
	if c.MaxRaisesPerStreet < 0 {
		return fmt.Errorf("max raises per street %d negative", c.MaxRaisesPerStreet)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("max history %d must be positive", c.MaxHistory)
	}
	return nil
}

// NumActionTags returns the size of the fixed abstract action space:
// fold, check, call, each configured raise size, and all-in.
func (c AbstractionConfig) NumActionTags() int {
	n := 3 + len(c.PreflopRaises) + len(c.PostflopBets)
	if c.IncludeAllIn {
		n++
	}
	return n
}

// TrainingConfig controls a solver run.
type TrainingConfig struct {
	Mode       Mode  `json:"mode"`
	Iterations int   `json:"iterations"`
	Seed       int64 `json:"seed"`
	Workers    int   `json:"workers"`

	// Stakes. StackDepth is in big blinds.
	SmallBlind int `json:"small_blind"`
	BigBlind   int `json:"big_blind"`
	StackDepth int `json:"stack_depth"`

	// LinearAveraging weights strategy contributions by iteration.
	LinearAveraging bool `json:"linear_averaging"`

	// Exploration is the floor mixed into sampled opponent strategies
	// during training. Never applied at query time. ExplorationDecay
	// multiplies the floor down per iteration; 0 keeps it constant.
	Exploration      float64 `json:"exploration"`
	ExplorationDecay float64 `json:"exploration_decay,omitempty"`

	// Neural settings, ignored in tabular mode.
	AdvantageMemory int     `json:"advantage_memory"`
	PolicyMemory    int     `json:"policy_memory"`
	UpdateEvery     int     `json:"update_every"`
	BatchSize       int     `json:"batch_size"`
	TrainSteps      int     `json:"train_steps"`
	HiddenSizes     []int   `json:"hidden_sizes"`
	LearnRate       float64 `json:"learn_rate"`

	// Scheduling.
	CheckpointEvery    int    `json:"checkpoint_every"`
	CheckpointInterval string `json:"checkpoint_interval,omitempty"` // duration, e.g. "5m"
	CheckpointPath     string `json:"checkpoint_path,omitempty"`
	EvalEvery          int    `json:"eval_every"`
	EvalDeals          int    `json:"eval_deals"`
}

// DefaultTrainingConfig returns a tabular baseline run.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Mode:             ModeTabular,
		Iterations:       100000,
		Seed:             1,
		Workers:          1,
		SmallBlind:       1,
		BigBlind:         2,
		StackDepth:       100,
		LinearAveraging:  true,
		Exploration:      0.05,
		ExplorationDecay: 0.999,
		AdvantageMemory:  1 << 18,
		PolicyMemory:     1 << 18,
		UpdateEvery:      1000,
		BatchSize:        512,
		TrainSteps:       200,
		HiddenSizes:      []int{64, 64},
		LearnRate:        1e-3,
		CheckpointEvery:  10000,
		EvalEvery:        5000,
		EvalDeals:        500,
	}
}

// Validate checks the run configuration.
func (c TrainingConfig) Validate() error {
	if c.Iterations < 1 {
		return fmt.Errorf("iterations %d must be positive", c.Iterations)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers %d must be positive", c.Workers)
	}
	if c.SmallBlind < 1 || c.BigBlind < c.SmallBlind {
		return fmt.Errorf("invalid blinds %d/%d", c.SmallBlind, c.BigBlind)
	}
	if c.StackDepth < 1 {
		return fmt.Errorf("stack depth %d must be positive", c.StackDepth)
	}
	if c.Exploration < 0 || c.Exploration > 1 {
		return fmt.Errorf("exploration %.2f out of [0,1]", c.Exploration)
	}
	if c.ExplorationDecay < 0 || c.ExplorationDecay > 1 {
		return fmt.Errorf("exploration decay %.4f out of [0,1]", c.ExplorationDecay)
	}
	if c.Mode == ModeNeural {
		if c.AdvantageMemory < 1 || c.PolicyMemory < 1 {
			return fmt.Errorf("reservoir capacities must be positive")
		}
		if c.UpdateEvery < 1 {
			return fmt.Errorf("update every %d must be positive", c.UpdateEvery)
		}
		if c.BatchSize < 1 || c.TrainSteps < 1 {
			return fmt.Errorf("batch size and train steps must be positive")
		}
		if len(c.HiddenSizes) == 0 {
			return fmt.Errorf("neural mode needs at least one hidden layer")
		}
		if c.LearnRate <= 0 {
			return fmt.Errorf("learn rate %.5f must be positive", c.LearnRate)
		}
	}
	return nil
}

// StartingStack returns the per-seat stack in chips.
func (c TrainingConfig) StartingStack() int {
	return c.StackDepth * c.BigBlind
}
