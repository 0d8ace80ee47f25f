package autograd

import (
	"github.com/tsawler/go-vaegan/tensor"
)

// BroadcastTo expands x to shape.
func BroadcastTo(x *Var, shape []int) *Var {
	if tensor.ShapesEqual(x.Shape(), shape) {
		return x
	}
	value := must("broadcast_to")(tensor.BroadcastTo(x.value, shape))
	return record("broadcast_to", value, []*Var{x}, func(g *Var) []*Var {
		return []*Var{SumTo(g, x.Shape())}
	})
}

// SumTo sums x over its broadcast dimensions down to shape.
func SumTo(x *Var, shape []int) *Var {
	if tensor.ShapesEqual(x.Shape(), shape) {
		return x
	}
	value := must("sum_to")(tensor.SumTo(x.value, shape))
	return record("sum_to", value, []*Var{x}, func(g *Var) []*Var {
		return []*Var{BroadcastTo(g, x.Shape())}
	})
}

// SumAxes sums over axes, keeping them as size-1 dimensions. With no axes
// it reduces over every axis.
func SumAxes(x *Var, axes ...int) *Var {
	if len(axes) == 0 {
		axes = allAxes(x)
	}
	shape, err := tensor.ReducedShape(x.Shape(), axes)
	if err != nil {
		fail("sum_axes", err)
	}
	return SumTo(x, shape)
}

// MeanAxes averages over axes, keeping them as size-1 dimensions.
func MeanAxes(x *Var, axes ...int) *Var {
	s := SumAxes(x, axes...)
	return Scale(s, float32(s.value.NumElems)/float32(x.value.NumElems))
}

// Sum returns the sum of all elements as a shape [1] value.
func Sum(x *Var) *Var {
	return Reshape(SumAxes(x), []int{1})
}

// Mean returns the mean of all elements as a shape [1] value.
func Mean(x *Var) *Var {
	return Scale(Sum(x), 1/float32(x.value.NumElems))
}

func allAxes(x *Var) []int {
	axes := make([]int, len(x.Shape()))
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// Reshape returns x with a new shape. One dimension may be -1.
func Reshape(x *Var, shape []int) *Var {
	value := must("reshape")(x.value.Reshape(shape))
	if tensor.ShapesEqual(value.Shape, x.Shape()) {
		return x
	}
	return record("reshape", value, []*Var{x}, func(g *Var) []*Var {
		return []*Var{Reshape(g, x.Shape())}
	})
}

// Flatten reshapes x to [batch, -1].
func Flatten(x *Var) *Var {
	return Reshape(x, []int{x.Shape()[0], -1})
}

// Transpose swaps the axes of a matrix.
func Transpose(x *Var) *Var {
	value := must("transpose")(tensor.Transpose2D(x.value))
	return record("transpose", value, []*Var{x}, func(g *Var) []*Var {
		return []*Var{Transpose(g)}
	})
}

// Concat joins values along their last dimension.
func Concat(xs ...*Var) *Var {
	values := make([]*tensor.Tensor, len(xs))
	for i, x := range xs {
		values[i] = x.value
	}
	value := must("concat")(tensor.ConcatLastAxis(values...))
	return record("concat", value, xs, func(g *Var) []*Var {
		grads := make([]*Var, len(xs))
		off := 0
		for i, x := range xs {
			c := x.value.Dim(-1)
			grads[i] = Slice(g, off, off+c)
			off += c
		}
		return grads
	})
}

// Slice returns x[..., start:end].
func Slice(x *Var, start, end int) *Var {
	value := must("slice")(tensor.SliceLastAxis(x.value, start, end))
	return record("slice", value, []*Var{x}, func(g *Var) []*Var {
		return []*Var{Pad(g, start, x.value.Dim(-1))}
	})
}

// Pad places x's last dimension at offset start in a zero value whose last
// dimension has size total.
func Pad(x *Var, start, total int) *Var {
	value := must("pad")(tensor.PadLastAxis(x.value, start, total))
	return record("pad", value, []*Var{x}, func(g *Var) []*Var {
		return []*Var{Slice(g, start, start+x.value.Dim(-1))}
	})
}
