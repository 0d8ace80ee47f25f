package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul multiplies a [m, k] by b [k, n].
func MatMul(a, b *Tensor) (*Tensor, error) {
	return MatMulTrans(a, b, false, false)
}

// MatMulTrans multiplies op(a) by op(b), where op transposes its operand
// when the matching flag is set. Both operands must be rank 2.
func MatMulTrans(a, b *Tensor, transA, transB bool) (*Tensor, error) {
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("matrix multiplication requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	m, k := a.Shape[0], a.Shape[1]
	if transA {
		m, k = k, m
	}
	k2, n := b.Shape[0], b.Shape[1]
	if transB {
		k2, n = n, k2
	}
	if k != k2 {
		return nil, fmt.Errorf("incompatible matrix dimensions: %v x %v (transA=%t, transB=%t)", a.Shape, b.Shape, transA, transB)
	}
	out := make([]float32, m*n)
	blas32.Gemm(transFlag(transA), transFlag(transB), 1,
		general(a), general(b), 0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: out})
	return NewTensor([]int{m, n}, out)
}

func transFlag(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

func general(t *Tensor) blas32.General {
	return blas32.General{Rows: t.Shape[0], Cols: t.Shape[1], Stride: t.Shape[1], Data: t.Data}
}

// Transpose2D swaps the two axes of a matrix.
func Transpose2D(t *Tensor) (*Tensor, error) {
	if t.Rank() != 2 {
		return nil, fmt.Errorf("transpose requires a 2D tensor, got shape %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	out := make([]float32, t.NumElems)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[j*rows+i] = t.Data[i*cols+j]
		}
	}
	return NewTensor([]int{cols, rows}, out)
}

// Reshape returns a tensor sharing t's data with a new shape. One
// dimension may be -1, in which case it is inferred.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	shape := append([]int(nil), newShape...)
	known, infer := 1, -1
	for i, d := range shape {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			infer = i
		case d <= 0:
			return nil, fmt.Errorf("invalid dimension %d at index %d", d, i)
		default:
			known *= d
		}
	}
	if infer >= 0 {
		if t.NumElems%known != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", t.NumElems, newShape)
		}
		shape[infer] = t.NumElems / known
		known *= shape[infer]
	}
	if known != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)", t.NumElems, newShape, known)
	}
	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}
