package autograd

import (
	"cmp"
	"errors"
	"slices"

	"github.com/tsawler/go-vaegan/tensor"
)

// GradOptions controls a backward pass.
type GradOptions struct {
	// CreateGraph records the backward pass so the returned gradients can
	// themselves be differentiated.
	CreateGraph bool
}

// Grad returns d(sum y)/dx for every x in wrt. Inputs that y does not
// depend on receive a zero gradient. Without CreateGraph the returned
// gradients are constants.
func Grad(y *Var, wrt []*Var, opts GradOptions) (grads []*Var, err error) {
	if y == nil {
		return nil, errors.New("grad: nil output")
	}
	err = Try(func() {
		if opts.CreateGraph {
			grads = backprop(y, wrt)
			return
		}
		NoGrad(func() { grads = backprop(y, wrt) })
	})
	return grads, err
}

func backprop(y *Var, wrt []*Var) []*Var {
	target := make(map[*Var]bool, len(wrt))
	for _, x := range wrt {
		target[x] = true
	}

	// Collect the recorded subgraph under y.
	var nodes []*Var
	seen := map[*Var]bool{}
	stack := []*Var{y}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		nodes = append(nodes, n)
		stack = append(stack, n.parents...)
	}
	// Parents are always created before their children.
	slices.SortFunc(nodes, func(a, b *Var) int { return cmp.Compare(a.id, b.id) })

	// A node is relevant when some target is reachable through its parents.
	relevant := make(map[*Var]bool, len(nodes))
	for _, n := range nodes {
		if target[n] {
			relevant[n] = true
			continue
		}
		for _, p := range n.parents {
			if relevant[p] {
				relevant[n] = true
				break
			}
		}
	}

	acc := map[*Var]*Var{}
	if relevant[y] {
		acc[y] = Constant(tensor.OnesLike(y.value))
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		g, ok := acc[n]
		if !ok || n.backward == nil {
			continue
		}
		parentGrads := n.backward(g)
		for j, p := range n.parents {
			if !relevant[p] || parentGrads[j] == nil {
				continue
			}
			if prev, ok := acc[p]; ok {
				acc[p] = Add(prev, parentGrads[j])
			} else {
				acc[p] = parentGrads[j]
			}
		}
	}

	out := make([]*Var, len(wrt))
	for i, x := range wrt {
		if g, ok := acc[x]; ok {
			out[i] = g
		} else {
			out[i] = Constant(tensor.ZerosLike(x.value))
		}
	}
	return out
}
