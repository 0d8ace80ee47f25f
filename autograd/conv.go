package autograd

import (
	"github.com/tsawler/go-vaegan/tensor"
)

// Conv2D convolves x [N,H,W,C] with filter [k,k,C,O] using SAME padding.
func Conv2D(x, filter *Var, stride int) *Var {
	value := must("conv2d")(tensor.Conv2D(x.value, filter.value, stride))
	return record("conv2d", value, []*Var{x, filter}, func(g *Var) []*Var {
		return []*Var{
			conv2DBackpropInput(g, filter, x.Shape(), stride),
			conv2DBackpropFilter(x, g, filter.Shape(), stride),
		}
	})
}

// Conv2DTranspose upsamples x [N,h,w,O] to outShape [N,H,W,C] with a
// filter of shape [k,k,C,O]. It is the adjoint of Conv2D.
func Conv2DTranspose(x, filter *Var, outShape []int, stride int) *Var {
	return conv2DBackpropInput(x, filter, outShape, stride)
}

func conv2DBackpropInput(dy, filter *Var, inShape []int, stride int) *Var {
	value := must("conv2d_transpose")(tensor.Conv2DBackpropInput(dy.value, filter.value, inShape, stride))
	return record("conv2d_transpose", value, []*Var{dy, filter}, func(g *Var) []*Var {
		return []*Var{
			Conv2D(g, filter, stride),
			conv2DBackpropFilter(g, dy, filter.Shape(), stride),
		}
	})
}

func conv2DBackpropFilter(x, dy *Var, filterShape []int, stride int) *Var {
	value := must("conv2d_filter_grad")(tensor.Conv2DBackpropFilter(x.value, dy.value, filterShape, stride))
	return record("conv2d_filter_grad", value, []*Var{x, dy}, func(g *Var) []*Var {
		return []*Var{
			conv2DBackpropInput(dy, g, x.Shape(), stride),
			Conv2D(x, g, stride),
		}
	})
}
