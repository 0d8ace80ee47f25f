// Package autograd implements reverse-mode automatic differentiation over
// tensor values. Every vector-Jacobian product is itself built from
// differentiable operations, so gradients can be differentiated again.
package autograd

import (
	"fmt"
	"sync/atomic"

	"github.com/tsawler/go-vaegan/tensor"
)

var nextID atomic.Int64

// noGradDepth is non-zero while graph recording is disabled.
var noGradDepth atomic.Int32

// backwardFn maps the gradient of a node to the gradients of its parents.
// Entries may be nil when a parent receives no gradient.
type backwardFn func(g *Var) []*Var

// Var is a node in the computation graph.
type Var struct {
	id           int64
	op           string
	name         string
	value        *tensor.Tensor
	parents      []*Var
	backward     backwardFn
	requiresGrad bool
}

func newVar(op string, value *tensor.Tensor) *Var {
	return &Var{id: nextID.Add(1), op: op, value: value}
}

// Variable creates a leaf that gradients can be taken with respect to.
func Variable(value *tensor.Tensor, name string) *Var {
	v := newVar("variable", value)
	v.name = name
	v.requiresGrad = true
	return v
}

// Constant creates a leaf that never receives gradients.
func Constant(value *tensor.Tensor) *Var {
	return newVar("constant", value)
}

// Scalar creates a shape [1] constant.
func Scalar(value float32) *Var {
	return Constant(tensor.FromScalar(value))
}

func (v *Var) Value() *tensor.Tensor { return v.value }
func (v *Var) Shape() []int          { return v.value.Shape }
func (v *Var) Name() string          { return v.name }
func (v *Var) Op() string            { return v.op }
func (v *Var) RequiresGrad() bool    { return v.requiresGrad }

// Item returns the value of a single-element variable.
func (v *Var) Item() float32 {
	return v.value.Data[0]
}

// Detach returns a constant holding the same value.
func (v *Var) Detach() *Var {
	return Constant(v.value)
}

func (v *Var) String() string {
	if v.name != "" {
		return fmt.Sprintf("Var(%s, %s, shape=%v)", v.op, v.name, v.value.Shape)
	}
	return fmt.Sprintf("Var(%s, shape=%v)", v.op, v.value.Shape)
}

// GradEnabled reports whether operations currently record the graph.
func GradEnabled() bool {
	return noGradDepth.Load() == 0
}

// NoGrad runs fn with graph recording disabled. Results computed inside fn
// are constants. The setting is process wide.
func NoGrad(fn func()) {
	noGradDepth.Add(1)
	defer noGradDepth.Add(-1)
	fn()
}

// record builds the output node of an operation. When no parent needs a
// gradient, or recording is disabled, the result is a constant.
func record(op string, value *tensor.Tensor, parents []*Var, backward backwardFn) *Var {
	out := newVar(op, value)
	if !GradEnabled() {
		return out
	}
	for _, p := range parents {
		if p.requiresGrad {
			out.parents = parents
			out.backward = backward
			out.requiresGrad = true
			break
		}
	}
	return out
}
