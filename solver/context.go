package solver

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dmallory/deepcfr/solver/deep"
)

// TrainingContext owns every piece of mutable training state: the
// abstraction mapper, the info-set store, reservoir memories and the
// networks. Nothing lives in package globals, so independent contexts can
// train side by side.
type TrainingContext struct {
	abs AbstractionConfig
	cfg TrainingConfig
	log zerolog.Logger

	Mapper *Mapper
	Store  *Store

	// Neural state; nil slices of work in tabular mode.
	AdvMem  [2]*deep.Reservoir
	PolMem  *deep.Reservoir
	AdvNets [2]*deep.Network
	PolNet  *deep.Network

	iteration atomic.Int64
}

// NewTrainingContext validates both configs and allocates the state.
func NewTrainingContext(abs AbstractionConfig, cfg TrainingConfig) (*TrainingContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("training config: %w", err)
	}
	mapper, err := NewMapper(abs)
	if err != nil {
		return nil, err
	}
	tc := &TrainingContext{
		abs:    abs,
		cfg:    cfg,
		log:    zerolog.Nop(),
		Mapper: mapper,
		Store:  NewStore(),
	}
	if cfg.Mode == ModeNeural {
		if err := tc.initNeural(); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

func (tc *TrainingContext) initNeural() error {
	netCfg := deep.Config{
		Inputs:    FeatureDim,
		Hidden:    tc.cfg.HiddenSizes,
		Outputs:   tc.abs.NumActionTags(),
		LearnRate: tc.cfg.LearnRate,
	}
	for p := 0; p < 2; p++ {
		netCfg.Seed = tc.cfg.Seed + int64(p) + 1
		net, err := deep.NewNetwork(netCfg)
		if err != nil {
			return fmt.Errorf("%w: advantage network: %v", ErrApproximatorUnavailable, err)
		}
		tc.AdvNets[p] = net
		tc.AdvMem[p] = deep.NewReservoir(tc.cfg.AdvantageMemory, tc.cfg.Seed+int64(p)+10)
	}
	netCfg.Seed = tc.cfg.Seed + 20
	net, err := deep.NewNetwork(netCfg)
	if err != nil {
		return fmt.Errorf("%w: policy network: %v", ErrApproximatorUnavailable, err)
	}
	tc.PolNet = net
	tc.PolMem = deep.NewReservoir(tc.cfg.PolicyMemory, tc.cfg.Seed+30)
	return nil
}

// Abstraction returns the abstraction config the context was built with.
func (tc *TrainingContext) Abstraction() AbstractionConfig { return tc.abs }

// TrainingConfig returns the run configuration.
func (tc *TrainingContext) TrainingConfig() TrainingConfig { return tc.cfg }

// Iteration returns the completed iteration count.
func (tc *TrainingContext) Iteration() int64 { return tc.iteration.Load() }

// advisor returns the advantage predictor for traversal, nil in tabular
// mode.
func (tc *TrainingContext) advisor() Advisor {
	if tc.cfg.Mode != ModeNeural {
		return nil
	}
	a, err := NewNeuralAdvisor(tc.AdvNets)
	if err != nil {
		return nil
	}
	return a
}
