package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-vaegan/layers"
	"github.com/tsawler/go-vaegan/tensor"
)

// AdamOptimizerState holds Adam state for one group of parameters
type AdamOptimizerState struct {
	// Hyperparameters
	LearningRate float32
	Beta1        float32 // Momentum decay
	Beta2        float32 // Variance decay
	Epsilon      float32
	WeightDecay  float32 // L2 regularization coefficient

	Params          []*layers.Parameter
	MomentumBuffers []*tensor.Tensor // First moment for each parameter
	VarianceBuffers []*tensor.Tensor // Second moment for each parameter

	// Step tracking for bias correction
	StepCount uint64
}

// AdamConfig holds configuration for Adam optimizer
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	WeightDecay  float32
}

// DefaultAdamConfig returns default Adam optimizer configuration
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.0002,
		Beta1:        0.5,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// Validate checks the hyperparameters.
func (c AdamConfig) Validate() error {
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 {
		return fmt.Errorf("beta1 must be in [0, 1), got %g", c.Beta1)
	}
	if c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("beta2 must be in [0, 1), got %g", c.Beta2)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %g", c.Epsilon)
	}
	return nil
}

// NewAdamOptimizer creates an Adam optimizer over params. The optimizer
// updates exactly these parameters and nothing else.
func NewAdamOptimizer(config AdamConfig, params []*layers.Parameter) (*AdamOptimizerState, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters provided")
	}

	adam := &AdamOptimizerState{
		LearningRate:    config.LearningRate,
		Beta1:           config.Beta1,
		Beta2:           config.Beta2,
		Epsilon:         config.Epsilon,
		WeightDecay:     config.WeightDecay,
		Params:          params,
		MomentumBuffers: make([]*tensor.Tensor, len(params)),
		VarianceBuffers: make([]*tensor.Tensor, len(params)),
	}
	for i, p := range params {
		if !p.Trainable {
			return nil, fmt.Errorf("parameter %q is not trainable", p.Name)
		}
		adam.MomentumBuffers[i] = tensor.ZerosLike(p.Value)
		adam.VarianceBuffers[i] = tensor.ZerosLike(p.Value)
	}
	return adam, nil
}

// Step performs a single Adam optimization step using the bias-corrected
// step size lr*sqrt(1-beta2^t)/(1-beta1^t).
func (adam *AdamOptimizerState) Step(grads []*tensor.Tensor) error {
	if len(grads) != len(adam.Params) {
		return fmt.Errorf("gradients length (%d) doesn't match parameters length (%d)",
			len(grads), len(adam.Params))
	}
	for i, g := range grads {
		if !tensor.ShapesEqual(g.Shape, adam.Params[i].Value.Shape) {
			return fmt.Errorf("gradient for %q has shape %v, want %v", adam.Params[i].Name, g.Shape, adam.Params[i].Value.Shape)
		}
	}

	adam.StepCount++
	t := float64(adam.StepCount)
	b1, b2 := float64(adam.Beta1), float64(adam.Beta2)
	lrT := float32(float64(adam.LearningRate) * math.Sqrt(1-math.Pow(b2, t)) / (1 - math.Pow(b1, t)))

	for i, p := range adam.Params {
		w := p.Value.Data
		m := adam.MomentumBuffers[i].Data
		v := adam.VarianceBuffers[i].Data
		for j, g := range grads[i].Data {
			if adam.WeightDecay != 0 {
				g += adam.WeightDecay * w[j]
			}
			m[j] = adam.Beta1*m[j] + (1-adam.Beta1)*g
			v[j] = adam.Beta2*v[j] + (1-adam.Beta2)*g*g
			w[j] -= lrT * m[j] / (float32(math.Sqrt(float64(v[j]))) + adam.Epsilon)
		}
	}
	return nil
}

// UpdateLearningRate updates the learning rate (useful for learning rate scheduling)
func (adam *AdamOptimizerState) UpdateLearningRate(newLR float32) {
	adam.LearningRate = newLR
}

// GetStepCount returns the current step count
func (adam *AdamOptimizerState) GetStepCount() uint64 {
	return adam.StepCount
}

// GetState extracts the moment buffers and hyperparameters.
func (adam *AdamOptimizerState) GetState() (*OptimizerState, error) {
	state := &OptimizerState{
		Type: "Adam",
		Parameters: map[string]interface{}{
			"learning_rate": adam.LearningRate,
			"beta1":         adam.Beta1,
			"beta2":         adam.Beta2,
			"epsilon":       adam.Epsilon,
			"weight_decay":  adam.WeightDecay,
			"step_count":    adam.StepCount,
		},
	}
	for i, p := range adam.Params {
		state.StateData = append(state.StateData,
			extractBufferState(adam.MomentumBuffers[i], fmt.Sprintf("momentum_%d", i), "momentum", p.Name),
			extractBufferState(adam.VarianceBuffers[i], fmt.Sprintf("variance_%d", i), "variance", p.Name),
		)
	}
	return state, nil
}

// LoadState restores moment buffers and hyperparameters. Slots are matched
// by index and checked against the owning parameter's name.
func (adam *AdamOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("Adam", state); err != nil {
		return err
	}
	adam.LearningRate = extractFloat32Param(state.Parameters, "learning_rate", adam.LearningRate)
	adam.Beta1 = extractFloat32Param(state.Parameters, "beta1", adam.Beta1)
	adam.Beta2 = extractFloat32Param(state.Parameters, "beta2", adam.Beta2)
	adam.Epsilon = extractFloat32Param(state.Parameters, "epsilon", adam.Epsilon)
	adam.WeightDecay = extractFloat32Param(state.Parameters, "weight_decay", adam.WeightDecay)
	adam.StepCount = extractUint64Param(state.Parameters, "step_count", 0)

	for _, st := range state.StateData {
		idx := extractBufferIndex(st.Name)
		if idx < 0 || idx >= len(adam.Params) {
			return fmt.Errorf("invalid state tensor name %q", st.Name)
		}
		if st.Parameter != "" && st.Parameter != adam.Params[idx].Name {
			return fmt.Errorf("state tensor %q belongs to %q, expected %q", st.Name, st.Parameter, adam.Params[idx].Name)
		}
		var dst *tensor.Tensor
		switch st.StateType {
		case "momentum":
			dst = adam.MomentumBuffers[idx]
		case "variance":
			dst = adam.VarianceBuffers[idx]
		default:
			return fmt.Errorf("unknown Adam state type %q", st.StateType)
		}
		if err := restoreBufferState(dst, st.Data, st.Name); err != nil {
			return err
		}
	}
	return nil
}

// GetStats returns optimizer statistics
func (adam *AdamOptimizerState) GetStats() AdamStats {
	total := 0
	for _, p := range adam.Params {
		total += p.Value.NumElems
	}
	return AdamStats{
		StepCount:     adam.StepCount,
		LearningRate:  adam.LearningRate,
		Beta1:         adam.Beta1,
		Beta2:         adam.Beta2,
		Epsilon:       adam.Epsilon,
		WeightDecay:   adam.WeightDecay,
		NumParameters: len(adam.Params),
		NumElements:   total,
	}
}

// AdamStats provides statistics about the Adam optimizer
type AdamStats struct {
	StepCount     uint64
	LearningRate  float32
	Beta1         float32
	Beta2         float32
	Epsilon       float32
	WeightDecay   float32
	NumParameters int
	NumElements   int
}
