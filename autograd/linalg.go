package autograd

import (
	"github.com/tsawler/go-vaegan/tensor"
)

// MatMul multiplies a [m, k] by b [k, n].
func MatMul(a, b *Var) *Var {
	return matMul(a, b, false, false)
}

// matMul computes op(a) op(b). The gradient of each operand is another
// product of the same form, which keeps the pass differentiable.
func matMul(a, b *Var, ta, tb bool) *Var {
	value := must("matmul")(tensor.MatMulTrans(a.value, b.value, ta, tb))
	return record("matmul", value, []*Var{a, b}, func(g *Var) []*Var {
		switch {
		case !ta && !tb:
			return []*Var{matMul(g, b, false, true), matMul(a, g, true, false)}
		case !ta && tb:
			return []*Var{matMul(g, b, false, false), matMul(g, a, true, false)}
		case ta && !tb:
			return []*Var{matMul(b, g, false, true), matMul(a, g, false, false)}
		default:
			return []*Var{matMul(b, g, true, true), matMul(g, a, true, true)}
		}
	})
}
