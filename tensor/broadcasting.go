package tensor

import (
	"fmt"
)

// BroadcastShapes returns the shape two operands broadcast to, following
// NumPy rules: dimensions are aligned from the right and each pair must be
// equal or contain a 1.
func BroadcastShapes(shape1, shape2 []int) ([]int, error) {
	maxDims := max(len(shape1), len(shape2))
	result := make([]int, maxDims)
	for i := 0; i < maxDims; i++ {
		dim1, dim2 := 1, 1
		if j := len(shape1) - maxDims + i; j >= 0 {
			dim1 = shape1[j]
		}
		if j := len(shape2) - maxDims + i; j >= 0 {
			dim2 = shape2[j]
		}
		switch {
		case dim1 == dim2:
			result[i] = dim1
		case dim1 == 1:
			result[i] = dim2
		case dim2 == 1:
			result[i] = dim1
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable: dimension %d has sizes %d and %d", shape1, shape2, i, dim1, dim2)
		}
	}
	return result, nil
}

// CanBroadcastTo reports whether src broadcasts to exactly dst.
func CanBroadcastTo(src, dst []int) bool {
	out, err := BroadcastShapes(src, dst)
	return err == nil && ShapesEqual(out, dst)
}

// alignedStrides returns strides of a tensor of shape src viewed as shape
// dst, with zero stride on broadcast dimensions.
func alignedStrides(src, dst []int) []int {
	srcStrides := calculateStrides(src)
	out := make([]int, len(dst))
	offset := len(dst) - len(src)
	for i := range dst {
		j := i - offset
		if j < 0 || src[j] == 1 {
			continue
		}
		out[i] = srcStrides[j]
	}
	return out
}

// forEachBroadcast visits every index of dst together with the matching
// flat offset in a source laid out with the given aligned strides.
func forEachBroadcast(dst []int, strides []int, fn func(dstIdx, srcIdx int)) {
	n := calculateNumElements(dst)
	rank := len(dst)
	coords := make([]int, rank)
	src := 0
	for i := 0; i < n; i++ {
		fn(i, src)
		for d := rank - 1; d >= 0; d-- {
			coords[d]++
			src += strides[d]
			if coords[d] < dst[d] {
				break
			}
			src -= coords[d] * strides[d]
			coords[d] = 0
		}
	}
}

// BroadcastTo materializes t expanded to shape.
func BroadcastTo(t *Tensor, shape []int) (*Tensor, error) {
	if !CanBroadcastTo(t.Shape, shape) {
		return nil, fmt.Errorf("cannot broadcast shape %v to %v", t.Shape, shape)
	}
	if ShapesEqual(t.Shape, shape) {
		return t.Clone(), nil
	}
	out := make([]float32, calculateNumElements(shape))
	forEachBroadcast(shape, alignedStrides(t.Shape, shape), func(d, s int) {
		out[d] = t.Data[s]
	})
	return NewTensor(shape, out)
}

// SumTo reduces t to shape by summing over the broadcast dimensions. It is
// the adjoint of BroadcastTo.
func SumTo(t *Tensor, shape []int) (*Tensor, error) {
	if !CanBroadcastTo(shape, t.Shape) {
		return nil, fmt.Errorf("cannot sum shape %v down to %v", t.Shape, shape)
	}
	if ShapesEqual(t.Shape, shape) {
		return t.Clone(), nil
	}
	out := make([]float32, calculateNumElements(shape))
	forEachBroadcast(t.Shape, alignedStrides(shape, t.Shape), func(d, s int) {
		out[s] += t.Data[d]
	})
	return NewTensor(shape, out)
}

func binaryBroadcast(a, b *Tensor, op func(x, y float32) float32) (*Tensor, error) {
	if ShapesEqual(a.Shape, b.Shape) {
		out := make([]float32, a.NumElems)
		for i := range out {
			out[i] = op(a.Data[i], b.Data[i])
		}
		return NewTensor(a.Shape, out)
	}
	shape, err := BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}
	out := make([]float32, calculateNumElements(shape))
	sa := alignedStrides(a.Shape, shape)
	sb := alignedStrides(b.Shape, shape)
	// Walk b alongside a by recording a's offsets first.
	aIdx := make([]int, len(out))
	forEachBroadcast(shape, sa, func(d, s int) { aIdx[d] = s })
	forEachBroadcast(shape, sb, func(d, s int) {
		out[d] = op(a.Data[aIdx[d]], b.Data[s])
	})
	return NewTensor(shape, out)
}
