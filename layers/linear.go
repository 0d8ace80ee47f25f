package layers

import (
	"fmt"

	"github.com/tsawler/go-vaegan/autograd"
)

// DefaultStddev is the standard deviation used by the normal initializers
// of Linear, Conv and Deconv layers.
const DefaultStddev = 0.02

// LinearLayer computes x·Matrix + bias.
type LinearLayer struct {
	Matrix *Parameter
	Bias   *Parameter
	spec   *LayerSpec
}

// NewLinear creates name/Matrix [in, out] drawn from N(0, stddev^2) and a
// zero name/bias [out].
func NewLinear(ps *ParameterSet, name string, in, out int, stddev float32) (*LinearLayer, error) {
	return NewDense(ps, name, name+"/Matrix", name+"/bias", in, out, NormalInit(stddev))
}

// NewDense creates a linear layer whose weight and bias parameters carry
// explicit names. The weight uses init; the bias starts at zero.
func NewDense(ps *ParameterSet, name, matrixName, biasName string, in, out int, init Initializer) (*LinearLayer, error) {
	m, err := ps.Create(matrixName, []int{in, out}, init, true)
	if err != nil {
		return nil, err
	}
	b, err := ps.Create(biasName, []int{out}, ZerosInit(), true)
	if err != nil {
		return nil, err
	}
	spec := &LayerSpec{
		Type: Linear,
		Name: name,
		Parameters: map[string]interface{}{
			"input_size":  in,
			"output_size": out,
		},
	}
	ps.register(spec, m, b)
	return &LinearLayer{Matrix: m, Bias: b, spec: spec}, nil
}

// Forward applies the layer to x [batch, in].
func (l *LinearLayer) Forward(s *Session, x *autograd.Var) *autograd.Var {
	if len(x.Shape()) != 2 || x.Shape()[1] != l.Matrix.Value.Shape[0] {
		panic(&autograd.OpError{Op: l.spec.Name, Err: fmt.Errorf("%w: linear expects [batch, %d], got %v", autograd.ErrShape, l.Matrix.Value.Shape[0], x.Shape())})
	}
	y := autograd.Add(autograd.MatMul(x, s.Bind(l.Matrix)), s.Bind(l.Bias))
	l.spec.observe(x.Shape(), y.Shape())
	return y
}
