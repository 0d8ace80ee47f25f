package tensor

import (
	"fmt"
	"slices"
)

// normalizeAxes resolves negative axes and rejects duplicates.
func normalizeAxes(rank int, axes []int) ([]int, error) {
	out := make([]int, 0, len(axes))
	for _, a := range axes {
		if a < 0 {
			a += rank
		}
		if a < 0 || a >= rank {
			return nil, fmt.Errorf("axis out of range for rank %d", rank)
		}
		if slices.Contains(out, a) {
			return nil, fmt.Errorf("duplicate axis %d", a)
		}
		out = append(out, a)
	}
	slices.Sort(out)
	return out, nil
}

// ReducedShape returns the shape of t after summing over axes with keepdims
// semantics: every reduced axis becomes size 1.
func ReducedShape(shape []int, axes []int) ([]int, error) {
	norm, err := normalizeAxes(len(shape), axes)
	if err != nil {
		return nil, err
	}
	out := append([]int(nil), shape...)
	for _, a := range norm {
		out[a] = 1
	}
	return out, nil
}

// SumAxes sums over the given axes keeping them as size-1 dimensions.
// An empty axes list reduces over every axis.
func SumAxes(t *Tensor, axes ...int) (*Tensor, error) {
	if len(axes) == 0 {
		axes = make([]int, t.Rank())
		for i := range axes {
			axes[i] = i
		}
	}
	shape, err := ReducedShape(t.Shape, axes)
	if err != nil {
		return nil, err
	}
	return SumTo(t, shape)
}

// MeanAxes averages over the given axes keeping them as size-1 dimensions.
func MeanAxes(t *Tensor, axes ...int) (*Tensor, error) {
	s, err := SumAxes(t, axes...)
	if err != nil {
		return nil, err
	}
	return Scale(s, float32(s.NumElems)/float32(t.NumElems)), nil
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float32 {
	var s float64
	for _, v := range t.Data {
		s += float64(v)
	}
	return float32(s)
}

// Mean returns the mean of all elements.
func (t *Tensor) Mean() float32 {
	return t.Sum() / float32(t.NumElems)
}

// Max returns the largest element.
func (t *Tensor) Max() float32 {
	return slices.Max(t.Data)
}

// Min returns the smallest element.
func (t *Tensor) Min() float32 {
	return slices.Min(t.Data)
}
