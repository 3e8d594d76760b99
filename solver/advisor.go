package solver

import (
	"fmt"

	"github.com/dmallory/deepcfr/solver/deep"
)

// Advisor predicts per-tag advantage vectors for a player's decision
// point. The traversal regret-matches the prediction into a strategy; on
// any failure it falls back to the tabular accumulators, so an advisor is
// an accelerator rather than a dependency.
type Advisor interface {
	// Advantages returns a vector indexed by ActionTag.
	Advantages(player int, features []float64) ([]float64, error)
}

// neuralAdvisor serves predictions from per-player advantage networks.
type neuralAdvisor struct {
	nets [2]*deep.Network
}

// NewNeuralAdvisor wraps trained advantage networks. Either slot may not
// be nil.
func NewNeuralAdvisor(nets [2]*deep.Network) (Advisor, error) {
	if nets[0] == nil || nets[1] == nil {
		return nil, fmt.Errorf("%w: missing advantage network", ErrApproximatorUnavailable)
	}
	return &neuralAdvisor{nets: nets}, nil
}

func (a *neuralAdvisor) Advantages(player int, features []float64) ([]float64, error) {
	if player < 0 || player > 1 {
		return nil, fmt.Errorf("%w: player %d", ErrApproximatorUnavailable, player)
	}
	pred, err := a.nets[player].Predict(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrApproximatorUnavailable, err)
	}
	return pred, nil
}

// strategyFromAdvisor gathers the predicted advantages of the legal
// actions and regret-matches them. A nil advisor or a failed prediction
// returns nil, telling the caller to use the tabular path.
func strategyFromAdvisor(advisor Advisor, player int, features []float64, actions []AbstractAction) []float64 {
	if advisor == nil {
		return nil
	}
	pred, err := advisor.Advantages(player, features)
	if err != nil {
		return nil
	}
	sub := make([]float64, len(actions))
	for i, a := range actions {
		if int(a.Tag) >= len(pred) {
			return nil
		}
		sub[i] = pred[a.Tag]
	}
	return matchRegrets(sub)
}
