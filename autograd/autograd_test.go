package autograd

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-vaegan/tensor"
)

func randVar(t *testing.T, rng *rand.Rand, name string, shape ...int) *Var {
	t.Helper()
	v, err := tensor.RandomNormal(shape, 0, 1, rng)
	require.NoError(t, err)
	return Variable(v, name)
}

// checkGrad compares the analytic gradient of f with central differences.
func checkGrad(t *testing.T, f func(xs []*Var) *Var, xs []*Var, tol float64) {
	t.Helper()
	y := f(xs)
	grads, err := Grad(y, xs, GradOptions{})
	require.NoError(t, err)

	const h = 1e-2
	for i, x := range xs {
		for j := range x.value.Data {
			orig := x.value.Data[j]
			x.value.Data[j] = orig + h
			var plus, minus float64
			plus = float64(Sum(f(xs)).Item())
			x.value.Data[j] = orig - h
			minus = float64(Sum(f(xs)).Item())
			x.value.Data[j] = orig
			numeric := (plus - minus) / (2 * h)
			analytic := float64(grads[i].value.Data[j])
			if math.Abs(numeric-analytic) > tol*(1+math.Abs(numeric)) {
				t.Errorf("input %d element %d: analytic %v numeric %v", i, j, analytic, numeric)
			}
		}
	}
}

func TestElementwiseGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name string
		f    func(xs []*Var) *Var
	}{
		{"add broadcast", func(xs []*Var) *Var { return Add(xs[0], xs[1]) }},
		{"sub broadcast", func(xs []*Var) *Var { return Sub(xs[0], xs[1]) }},
		{"mul broadcast", func(xs []*Var) *Var { return Mul(xs[0], xs[1]) }},
		{"tanh", func(xs []*Var) *Var { return Mul(Tanh(xs[0]), xs[1]) }},
		{"sigmoid", func(xs []*Var) *Var { return Mul(Sigmoid(xs[0]), xs[1]) }},
		{"exp", func(xs []*Var) *Var { return Mul(Exp(Scale(xs[0], 0.5)), xs[1]) }},
		{"square", func(xs []*Var) *Var { return Mul(Square(xs[0]), xs[1]) }},
		{"log sqrt", func(xs []*Var) *Var {
			pos := AddScalar(Square(xs[0]), 1)
			return Mul(Add(Log(pos), Sqrt(pos)), xs[1])
		}},
		{"reciprocal", func(xs []*Var) *Var { return Div(xs[1], AddScalar(Square(xs[0]), 1)) }},
		{"bce", func(xs []*Var) *Var { return SigmoidCrossEntropyWithLogits(xs[0], Sigmoid(xs[1])) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			xs := []*Var{randVar(t, rng, "a", 3, 4), randVar(t, rng, "b", 4)}
			if tt.name == "bce" {
				xs[1] = randVar(t, rng, "b", 3, 4)
			}
			checkGrad(t, tt.f, xs, 2e-2)
		})
	}
}

func TestShapeGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	xs := []*Var{randVar(t, rng, "a", 2, 3), randVar(t, rng, "b", 2, 2), randVar(t, rng, "w", 5, 4)}
	f := func(xs []*Var) *Var {
		c := Concat(xs[0], xs[1])
		c = Mul(c, Constant(tensor.MustNew([]int{5}, []float32{1, 2, 3, 4, 5})))
		m := MatMul(c, xs[2])
		s := Slice(Transpose(m), 1, 2)
		return Concat(MeanAxes(m, 0), Reshape(Pad(s, 0, 3), []int{1, 12}))
	}
	checkGrad(t, f, xs, 2e-2)
}

func TestConvGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	xs := []*Var{randVar(t, rng, "x", 2, 5, 5, 2), randVar(t, rng, "w", 3, 3, 2, 3)}
	f := func(xs []*Var) *Var {
		y := Conv2D(xs[0], xs[1], 2)
		return Tanh(Conv2DTranspose(y, xs[1], []int{2, 5, 5, 2}, 2))
	}
	checkGrad(t, f, xs, 3e-2)
}

func TestDoubleBackprop(t *testing.T) {
	// f(x) = sum(x^3); df/dx = 3x^2; d(sum df/dx)/dx = 6x.
	x := Variable(tensor.MustNew([]int{3}, []float32{1, -2, 0.5}), "x")
	y := Sum(Mul(Square(x), x))
	g, err := Grad(y, []*Var{x}, GradOptions{CreateGraph: true})
	require.NoError(t, err)
	require.True(t, g[0].RequiresGrad())
	require.InDeltaSlice(t, []float32{3, 12, 0.75}, g[0].Value().Data, 1e-5)

	gg, err := Grad(Sum(g[0]), []*Var{x}, GradOptions{})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float32{6, -12, 3}, gg[0].Value().Data, 1e-5)
}

func TestDoubleBackpropThroughConv(t *testing.T) {
	// The squared norm of a linear map's input gradient is quadratic in
	// the filter; its filter gradient must match finite differences.
	rng := rand.New(rand.NewSource(4))
	x := randVar(t, rng, "x", 1, 4, 4, 1)
	w := randVar(t, rng, "w", 3, 3, 1, 2)
	f := func(xs []*Var) *Var {
		y := Sum(LeakyReLU(Conv2D(xs[0], xs[1], 2), 1))
		g, err := Grad(y, []*Var{xs[0]}, GradOptions{CreateGraph: true})
		require.NoError(t, err)
		return Sum(Square(g[0]))
	}
	checkGrad(t, f, []*Var{x, w}, 3e-2)
}

func TestGradUnreachableInputIsZero(t *testing.T) {
	a := Variable(tensor.MustNew([]int{2}, []float32{1, 2}), "a")
	b := Variable(tensor.MustNew([]int{3}, []float32{1, 2, 3}), "b")
	g, err := Grad(Sum(Square(a)), []*Var{a, b}, GradOptions{})
	require.NoError(t, err)
	require.Equal(t, []float32{2, 4}, g[0].Value().Data)
	require.Equal(t, []float32{0, 0, 0}, g[1].Value().Data)
	require.False(t, g[0].RequiresGrad())
}

func TestNoGradProducesConstants(t *testing.T) {
	a := Variable(tensor.MustNew([]int{2}, []float32{1, 2}), "a")
	var y *Var
	NoGrad(func() { y = Square(a) })
	require.False(t, y.RequiresGrad())
	require.True(t, GradEnabled())
}

func TestShapeErrorsAreRecovered(t *testing.T) {
	a := Constant(tensor.MustNew([]int{2}, []float32{1, 2}))
	b := Constant(tensor.MustNew([]int{3}, []float32{1, 2, 3}))
	err := Try(func() { Add(a, b) })
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrShape))
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, "add", opErr.Op)
}

func TestShapeErrorsNameTheOp(t *testing.T) {
	x := Constant(tensor.MustNew([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6}))
	w := Constant(tensor.MustNew([]int{2, 2}, []float32{1, 0, 0, 1}))
	tests := []struct {
		op string
		fn func()
	}{
		{"matmul", func() { MatMul(x, w) }},
		{"reshape", func() { Reshape(x, []int{4}) }},
		{"mul", func() { Mul(x, w) }},
	}
	for _, tt := range tests {
		err := Try(tt.fn)
		var opErr *OpError
		require.ErrorAs(t, err, &opErr, tt.op)
		require.Equal(t, tt.op, opErr.Op)
		require.ErrorIs(t, err, ErrShape)
	}
}
