package layers

import (
	"github.com/tsawler/go-vaegan/autograd"
)

// LeakySlope is the negative slope of LReLU.
const LeakySlope = 0.2

// LReLU applies a leaky ReLU with slope LeakySlope.
func LReLU(x *autograd.Var) *autograd.Var {
	return autograd.LeakyReLU(x, LeakySlope)
}

// ConcatLabelMap appends the label vector y [N, k] to every spatial
// position of x [N,H,W,C], giving [N,H,W,C+k].
func ConcatLabelMap(x, y *autograd.Var) *autograd.Var {
	xs, ys := x.Shape(), y.Shape()
	yb := autograd.Reshape(y, []int{ys[0], 1, 1, ys[1]})
	tiled := autograd.BroadcastTo(yb, []int{xs[0], xs[1], xs[2], ys[1]})
	return autograd.Concat(x, tiled)
}
