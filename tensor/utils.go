package tensor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape:    append([]int(nil), t.Shape...),
		Strides:  append([]int(nil), t.Strides...),
		Data:     append([]float32(nil), t.Data...),
		NumElems: t.NumElems,
	}
}

// CopyFrom overwrites t's elements with src's. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !ShapesEqual(t.Shape, src.Shape) {
		return fmt.Errorf("cannot copy shape %v into %v", src.Shape, t.Shape)
	}
	copy(t.Data, src.Data)
	return nil
}

// IsFinite reports whether every element is neither NaN nor infinite.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// AllClose reports whether a and b have the same shape and every element
// pair satisfies |a-b| <= atol + rtol*|b|.
func AllClose(a, b *Tensor, rtol, atol float64) bool {
	if !ShapesEqual(a.Shape, b.Shape) {
		return false
	}
	for i := range a.Data {
		x, y := float64(a.Data[i]), float64(b.Data[i])
		if math.Abs(x-y) > atol+rtol*math.Abs(y) {
			return false
		}
	}
	return true
}

// Float64s returns a float64 copy of the data.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, t.NumElems)
	for i, v := range t.Data {
		out[i] = float64(v)
	}
	return out
}

// Summary holds distribution statistics for a tensor.
type Summary struct {
	Min, Max  float64
	Mean, Std float64
	L2Norm    float64
}

// Describe computes summary statistics over all elements.
func Describe(t *Tensor) Summary {
	xs := t.Float64s()
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) < 2 {
		std = 0
	}
	return Summary{
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
		Mean:   mean,
		Std:    std,
		L2Norm: floats.Norm(xs, 2),
	}
}

// Histogram buckets the elements into n equal-width bins between the
// minimum and maximum value. It returns the n+1 bin edges and the counts.
func Histogram(t *Tensor, n int) (edges, counts []float64) {
	xs := t.Float64s()
	lo, hi := floats.Min(xs), floats.Max(xs)
	if hi == lo {
		hi = lo + 1
	}
	edges = make([]float64, n+1)
	floats.Span(edges, lo, hi)
	// stat.Histogram excludes the upper edge.
	edges[n] = math.Nextafter(hi, math.Inf(1))
	sorted := append([]float64(nil), xs...)
	floats.Argsort(sorted, make([]int, len(sorted)))
	counts = stat.Histogram(nil, edges, sorted, nil)
	return edges, counts
}

// PrintData formats up to maxElems elements for debugging.
func (t *Tensor) PrintData(maxElems int) string {
	n := min(maxElems, t.NumElems)
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%.4f", t.Data[i])
	}
	s := "[" + strings.Join(parts, ", ")
	if n < t.NumElems {
		s += ", ..."
	}
	return s + "]"
}
