package deep

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/dmallory/deepcfr/internal/randutil"
)

// Config describes a fully-connected network.
type Config struct {
	Inputs    int     `json:"inputs"`
	Hidden    []int   `json:"hidden"`
	Outputs   int     `json:"outputs"`
	LearnRate float64 `json:"learn_rate"`
	Seed      int64   `json:"seed"`
}

// Validate checks the layer dimensions.
func (c Config) Validate() error {
	if c.Inputs < 1 || c.Outputs < 1 {
		return fmt.Errorf("network needs inputs and outputs, got %d/%d", c.Inputs, c.Outputs)
	}
	if len(c.Hidden) == 0 {
		return fmt.Errorf("network needs at least one hidden layer")
	}
	for _, h := range c.Hidden {
		if h < 1 {
			return fmt.Errorf("hidden layer size %d must be positive", h)
		}
	}
	if c.LearnRate <= 0 {
		return fmt.Errorf("learn rate %.6f must be positive", c.LearnRate)
	}
	return nil
}

// Network is a ReLU multilayer perceptron with a linear output layer,
// trained by Adam on weighted mean squared error. It is the regressor
// behind both the advantage and the policy approximators.
type Network struct {
	cfg   Config
	sizes []int

	weights []*mat.Dense // weights[l] is (sizes[l+1] x sizes[l])
	biases  []*mat.VecDense

	// Adam moment estimates.
	mW, vW []*mat.Dense
	mB, vB []*mat.VecDense
	step   int

	mu sync.RWMutex
}

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// NewNetwork builds a network with He-initialized weights.
func NewNetwork(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sizes := append([]int{cfg.Inputs}, cfg.Hidden...)
	sizes = append(sizes, cfg.Outputs)

	n := &Network{cfg: cfg, sizes: sizes}
	rng := randutil.New(cfg.Seed)
	for l := 0; l+1 < len(sizes); l++ {
		in, out := sizes[l], sizes[l+1]
		w := mat.NewDense(out, in, nil)
		std := math.Sqrt(2.0 / float64(in))
		data := w.RawMatrix().Data
		for i := range data {
			data[i] = rng.NormFloat64() * std
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, mat.NewVecDense(out, nil))
		n.mW = append(n.mW, mat.NewDense(out, in, nil))
		n.vW = append(n.vW, mat.NewDense(out, in, nil))
		n.mB = append(n.mB, mat.NewVecDense(out, nil))
		n.vB = append(n.vB, mat.NewVecDense(out, nil))
	}
	return n, nil
}

// Conf returns the network configuration.
func (n *Network) Conf() Config { return n.cfg }

// Predict runs a forward pass. It returns an error on a dimension
// mismatch or a non-finite output, so callers can fall back rather than
// propagate a poisoned prediction.
func (n *Network) Predict(features []float64) ([]float64, error) {
	if len(features) != n.cfg.Inputs {
		return nil, fmt.Errorf("predict: %d features, network takes %d", len(features), n.cfg.Inputs)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	acts, _ := n.forward(features)
	out := acts[len(acts)-1].RawVector().Data
	result := make([]float64, len(out))
	copy(result, out)
	for _, v := range result {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("predict: non-finite output")
		}
	}
	return result, nil
}

// forward returns per-layer activations and pre-activations. Callers hold
// the lock.
func (n *Network) forward(features []float64) (acts, pres []*mat.VecDense) {
	a := mat.NewVecDense(len(features), append([]float64(nil), features...))
	acts = append(acts, a)
	last := len(n.weights) - 1
	for l, w := range n.weights {
		out := w.RawMatrix().Rows
		z := mat.NewVecDense(out, nil)
		z.MulVec(w, a)
		z.AddVec(z, n.biases[l])
		pres = append(pres, z)

		a = mat.NewVecDense(out, nil)
		zd, ad := z.RawVector().Data, a.RawVector().Data
		if l == last {
			copy(ad, zd)
		} else {
			for i, v := range zd {
				if v > 0 {
					ad[i] = v
				}
			}
		}
		acts = append(acts, a)
	}
	return acts, pres
}

// Fit applies one Adam step on the weighted MSE over the batch and
// returns the loss before the step.
func (n *Network) Fit(batch []Sample) (float64, error) {
	if len(batch) == 0 {
		return 0, fmt.Errorf("fit: empty batch")
	}
	var weightTotal float64
	for _, s := range batch {
		if len(s.Features) != n.cfg.Inputs || len(s.Targets) != n.cfg.Outputs {
			return 0, fmt.Errorf("fit: sample dims %d/%d, network takes %d/%d",
				len(s.Features), len(s.Targets), n.cfg.Inputs, n.cfg.Outputs)
		}
		if s.Weight <= 0 {
			return 0, fmt.Errorf("fit: non-positive sample weight %v", s.Weight)
		}
		weightTotal += s.Weight
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	layers := len(n.weights)
	gradW := make([]*mat.Dense, layers)
	gradB := make([]*mat.VecDense, layers)
	for l, w := range n.weights {
		r, c := w.Dims()
		gradW[l] = mat.NewDense(r, c, nil)
		gradB[l] = mat.NewVecDense(r, nil)
	}

	var loss float64
	norm := weightTotal * float64(n.cfg.Outputs)
	for _, s := range batch {
		acts, pres := n.forward(s.Features)
		out := acts[len(acts)-1].RawVector().Data

		// Output delta for weighted MSE with a linear output layer.
		delta := make([]float64, len(out))
		for i, v := range out {
			diff := v - s.Targets[i]
			loss += s.Weight * diff * diff / norm
			delta[i] = 2 * s.Weight * diff / norm
		}

		for l := layers - 1; l >= 0; l-- {
			aPrev := acts[l].RawVector().Data
			gw := gradW[l].RawMatrix()
			gb := gradB[l].RawVector().Data
			for i, d := range delta {
				gb[i] += d
				row := gw.Data[i*gw.Stride : i*gw.Stride+gw.Cols]
				for j, av := range aPrev {
					row[j] += d * av
				}
			}
			if l == 0 {
				break
			}
			// Propagate through the weights and the previous ReLU.
			w := n.weights[l].RawMatrix()
			prevZ := pres[l-1].RawVector().Data
			next := make([]float64, len(prevZ))
			for i, d := range delta {
				row := w.Data[i*w.Stride : i*w.Stride+w.Cols]
				for j := range next {
					next[j] += d * row[j]
				}
			}
			for j, z := range prevZ {
				if z <= 0 {
					next[j] = 0
				}
			}
			delta = next
		}
	}

	n.step++
	c1 := 1 - math.Pow(adamBeta1, float64(n.step))
	c2 := 1 - math.Pow(adamBeta2, float64(n.step))
	for l := range n.weights {
		adamUpdate(n.weights[l].RawMatrix().Data, gradW[l].RawMatrix().Data,
			n.mW[l].RawMatrix().Data, n.vW[l].RawMatrix().Data, n.cfg.LearnRate, c1, c2)
		adamUpdate(n.biases[l].RawVector().Data, gradB[l].RawVector().Data,
			n.mB[l].RawVector().Data, n.vB[l].RawVector().Data, n.cfg.LearnRate, c1, c2)
	}
	return loss, nil
}

func adamUpdate(params, grads, m, v []float64, lr, c1, c2 float64) {
	for i := range params {
		g := grads[i]
		m[i] = adamBeta1*m[i] + (1-adamBeta1)*g
		v[i] = adamBeta2*v[i] + (1-adamBeta2)*g*g
		mHat := m[i] / c1
		vHat := v[i] / c2
		params[i] -= lr * mHat / (math.Sqrt(vHat) + adamEps)
	}
}

// State is the serializable form of a network. Adam moments are not
// carried; a restored network restarts its optimizer schedule.
type State struct {
	Config  Config      `json:"config"`
	Weights [][]float64 `json:"weights"`
	Biases  [][]float64 `json:"biases"`
}

// State snapshots the weights for a checkpoint.
func (n *Network) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	st := State{Config: n.cfg}
	for l := range n.weights {
		st.Weights = append(st.Weights, append([]float64(nil), n.weights[l].RawMatrix().Data...))
		st.Biases = append(st.Biases, append([]float64(nil), n.biases[l].RawVector().Data...))
	}
	return st
}

// FromState rebuilds a network from a snapshot.
func FromState(st State) (*Network, error) {
	n, err := NewNetwork(st.Config)
	if err != nil {
		return nil, err
	}
	if len(st.Weights) != len(n.weights) || len(st.Biases) != len(n.biases) {
		return nil, fmt.Errorf("network state has %d layers, config wants %d", len(st.Weights), len(n.weights))
	}
	for l := range n.weights {
		data := n.weights[l].RawMatrix().Data
		if len(st.Weights[l]) != len(data) {
			return nil, fmt.Errorf("layer %d weight size %d, want %d", l, len(st.Weights[l]), len(data))
		}
		copy(data, st.Weights[l])
		bdata := n.biases[l].RawVector().Data
		if len(st.Biases[l]) != len(bdata) {
			return nil, fmt.Errorf("layer %d bias size %d, want %d", l, len(st.Biases[l]), len(bdata))
		}
		copy(bdata, st.Biases[l])
	}
	return n, nil
}
