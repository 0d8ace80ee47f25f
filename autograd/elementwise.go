package autograd

import (
	"github.com/tsawler/go-vaegan/tensor"
)

// must returns an unwrapper for tensor results of op that panics with an
// *OpError on failure.
func must(op string) func(*tensor.Tensor, error) *tensor.Tensor {
	return func(t *tensor.Tensor, err error) *tensor.Tensor {
		if err != nil {
			fail(op, err)
		}
		return t
	}
}

// Add returns a + b with broadcasting.
func Add(a, b *Var) *Var {
	value := must("add")(tensor.Add(a.value, b.value))
	return record("add", value, []*Var{a, b}, func(g *Var) []*Var {
		return []*Var{SumTo(g, a.Shape()), SumTo(g, b.Shape())}
	})
}

// Sub returns a - b with broadcasting.
func Sub(a, b *Var) *Var {
	value := must("sub")(tensor.Sub(a.value, b.value))
	return record("sub", value, []*Var{a, b}, func(g *Var) []*Var {
		return []*Var{SumTo(g, a.Shape()), SumTo(Neg(g), b.Shape())}
	})
}

// Mul returns the elementwise product with broadcasting.
func Mul(a, b *Var) *Var {
	value := must("mul")(tensor.Mul(a.value, b.value))
	return record("mul", value, []*Var{a, b}, func(g *Var) []*Var {
		return []*Var{SumTo(Mul(g, b), a.Shape()), SumTo(Mul(g, a), b.Shape())}
	})
}

// Div returns a / b with broadcasting.
func Div(a, b *Var) *Var {
	return Mul(a, Reciprocal(b))
}

// Scale returns s*x.
func Scale(x *Var, s float32) *Var {
	return record("scale", tensor.Scale(x.value, s), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Scale(g, s)}
	})
}

// Neg returns -x.
func Neg(x *Var) *Var {
	return Scale(x, -1)
}

// AddScalar returns x + s.
func AddScalar(x *Var, s float32) *Var {
	return record("add_scalar", tensor.AddScalar(x.value, s), []*Var{x}, func(g *Var) []*Var {
		return []*Var{g}
	})
}

// OneMinus returns 1 - x.
func OneMinus(x *Var) *Var {
	return AddScalar(Neg(x), 1)
}

func Exp(x *Var) *Var {
	var out *Var
	out = record("exp", tensor.Exp(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, out)}
	})
	return out
}

func Log(x *Var) *Var {
	return record("log", tensor.Log(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, Reciprocal(x))}
	})
}

func Reciprocal(x *Var) *Var {
	var out *Var
	out = record("reciprocal", tensor.Reciprocal(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Neg(Mul(g, Square(out)))}
	})
	return out
}

func Sqrt(x *Var) *Var {
	var out *Var
	out = record("sqrt", tensor.Sqrt(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Scale(Mul(g, Reciprocal(out)), 0.5)}
	})
	return out
}

func Square(x *Var) *Var {
	return record("square", tensor.Square(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Scale(Mul(g, x), 2)}
	})
}

func Tanh(x *Var) *Var {
	var out *Var
	out = record("tanh", tensor.Tanh(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, OneMinus(Square(out)))}
	})
	return out
}

func Sigmoid(x *Var) *Var {
	var out *Var
	out = record("sigmoid", tensor.Sigmoid(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, Mul(out, OneMinus(out)))}
	})
	return out
}

// The piecewise-linear activations below have a locally constant
// derivative, so their masks are recorded as constants.

func ReLU(x *Var) *Var {
	return record("relu", tensor.ReLU(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, Constant(tensor.StepMask(x.value)))}
	})
}

// LeakyReLU returns max(x, alpha*x).
func LeakyReLU(x *Var, alpha float32) *Var {
	return record("leaky_relu", tensor.LeakyReLU(x.value, alpha), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, Constant(tensor.LeakyMask(x.value, alpha)))}
	})
}

func Abs(x *Var) *Var {
	return record("abs", tensor.Abs(x.value), []*Var{x}, func(g *Var) []*Var {
		return []*Var{Mul(g, Constant(tensor.Sign(x.value)))}
	})
}
