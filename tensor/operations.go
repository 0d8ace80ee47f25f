package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas32"
)

// Add returns a + b with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return binaryBroadcast(a, b, func(x, y float32) float32 { return x + y })
}

// Sub returns a - b with broadcasting.
func Sub(a, b *Tensor) (*Tensor, error) {
	return binaryBroadcast(a, b, func(x, y float32) float32 { return x - y })
}

// Mul returns the elementwise product with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return binaryBroadcast(a, b, func(x, y float32) float32 { return x * y })
}

// Div returns the elementwise quotient with broadcasting.
func Div(a, b *Tensor) (*Tensor, error) {
	return binaryBroadcast(a, b, func(x, y float32) float32 { return x / y })
}

// AddInPlace accumulates src into dst. Shapes must match.
func AddInPlace(dst, src *Tensor) error {
	if !ShapesEqual(dst.Shape, src.Shape) {
		return fmt.Errorf("cannot accumulate shape %v into %v", src.Shape, dst.Shape)
	}
	blas32.Axpy(1, vec(src), vec(dst))
	return nil
}

// Scale returns s*t.
func Scale(t *Tensor, s float32) *Tensor {
	out := t.Clone()
	blas32.Scal(s, vec(out))
	return out
}

// AddScalar returns t + s.
func AddScalar(t *Tensor, s float32) *Tensor {
	return Map(t, func(x float32) float32 { return x + s })
}

// Dot returns the inner product of two tensors with equal element counts.
func Dot(a, b *Tensor) (float32, error) {
	if a.NumElems != b.NumElems {
		return 0, fmt.Errorf("dot of %d and %d elements", a.NumElems, b.NumElems)
	}
	return blas32.Dot(vec(a), vec(b)), nil
}

func vec(t *Tensor) blas32.Vector {
	return blas32.Vector{N: t.NumElems, Data: t.Data, Inc: 1}
}

// Map applies fn to every element.
func Map(t *Tensor, fn func(float32) float32) *Tensor {
	out := make([]float32, t.NumElems)
	for i, v := range t.Data {
		out[i] = fn(v)
	}
	return MustNew(t.Shape, out)
}

func Exp(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return float32(math.Exp(float64(x))) })
}

func Log(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return float32(math.Log(float64(x))) })
}

func Sqrt(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return float32(math.Sqrt(float64(x))) })
}

func Square(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return x * x })
}

func Reciprocal(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return 1 / x })
}

func Abs(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 {
		if x < 0 {
			return -x
		}
		return x
	})
}

func Tanh(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return float32(math.Tanh(float64(x))) })
}

// Sigmoid is computed in a form that does not overflow for large |x|.
func Sigmoid(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 {
		if x >= 0 {
			return float32(1 / (1 + math.Exp(-float64(x))))
		}
		e := math.Exp(float64(x))
		return float32(e / (1 + e))
	})
}

func ReLU(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 { return max(x, 0) })
}

// LeakyReLU returns max(x, alpha*x) for 0 <= alpha <= 1.
func LeakyReLU(t *Tensor, alpha float32) *Tensor {
	return Map(t, func(x float32) float32 { return max(x, alpha*x) })
}

// StepMask returns 1 where x > 0 and 0 elsewhere.
func StepMask(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 {
		if x > 0 {
			return 1
		}
		return 0
	})
}

// LeakyMask returns 1 where x > 0 and alpha elsewhere.
func LeakyMask(t *Tensor, alpha float32) *Tensor {
	return Map(t, func(x float32) float32 {
		if x > 0 {
			return 1
		}
		return alpha
	})
}

// Sign returns -1, 0 or 1 per element.
func Sign(t *Tensor) *Tensor {
	return Map(t, func(x float32) float32 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return 0
	})
}
