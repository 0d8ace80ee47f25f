package layers

import (
	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/tensor"
)

// Batch-norm hyperparameters.
const (
	BatchNormDecay   = 0.9
	BatchNormEpsilon = 1e-5
)

// BatchNormLayer normalizes over every axis but the last, with a learned
// scale and offset per channel.
type BatchNormLayer struct {
	Gamma          *Parameter
	Beta           *Parameter
	MovingMean     *Parameter
	MovingVariance *Parameter
	spec           *LayerSpec
}

// NewBatchNorm creates the per-channel parameters of a batch-norm layer.
// The moving statistics are stored as non-trainable state.
func NewBatchNorm(ps *ParameterSet, name string, channels int) (*BatchNormLayer, error) {
	shape := []int{channels}
	beta, err := ps.Create(name+"/beta", shape, ZerosInit(), true)
	if err != nil {
		return nil, err
	}
	gamma, err := ps.Create(name+"/gamma", shape, ConstantInit(1), true)
	if err != nil {
		return nil, err
	}
	mean, err := ps.Create(name+"/moving_mean", shape, ZerosInit(), false)
	if err != nil {
		return nil, err
	}
	variance, err := ps.Create(name+"/moving_variance", shape, ConstantInit(1), false)
	if err != nil {
		return nil, err
	}
	spec := &LayerSpec{
		Type: BatchNorm,
		Name: name,
		Parameters: map[string]interface{}{
			"num_features": channels,
			"eps":          BatchNormEpsilon,
			"decay":        BatchNormDecay,
		},
	}
	ps.register(spec, beta, gamma, mean, variance)
	return &BatchNormLayer{Gamma: gamma, Beta: beta, MovingMean: mean, MovingVariance: variance, spec: spec}, nil
}

// Forward normalizes x. In training mode the batch statistics are used
// and, when the session asks for it, folded into the moving averages.
func (l *BatchNormLayer) Forward(s *Session, x *autograd.Var) *autograd.Var {
	rank := len(x.Shape())
	axes := make([]int, rank-1)
	for i := range axes {
		axes[i] = i
	}

	var mean, variance *autograd.Var
	if s.Mode == Train {
		mean = autograd.MeanAxes(x, axes...)
		variance = autograd.MeanAxes(autograd.Square(autograd.Sub(x, mean)), axes...)
		if s.UpdateStats {
			l.updateMoving(mean.Value(), variance.Value())
		}
	} else {
		mean = s.Bind(l.MovingMean)
		variance = s.Bind(l.MovingVariance)
	}

	inv := autograd.Reciprocal(autograd.Sqrt(autograd.AddScalar(variance, BatchNormEpsilon)))
	xhat := autograd.Mul(autograd.Sub(x, mean), inv)
	y := autograd.Add(autograd.Mul(xhat, s.Bind(l.Gamma)), s.Bind(l.Beta))
	l.spec.observe(x.Shape(), y.Shape())
	return y
}

func (l *BatchNormLayer) updateMoving(mean, variance *tensor.Tensor) {
	mm, mv := l.MovingMean.Value.Data, l.MovingVariance.Value.Data
	for c := range mm {
		mm[c] = mm[c]*BatchNormDecay + mean.Data[c]*(1-BatchNormDecay)
		mv[c] = mv[c]*BatchNormDecay + variance.Data[c]*(1-BatchNormDecay)
	}
}
