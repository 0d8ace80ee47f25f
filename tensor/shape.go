package tensor

import (
	"fmt"
)

// ConcatLastAxis joins tensors along their last dimension. All leading
// dimensions must match.
func ConcatLastAxis(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat requires at least one tensor")
	}
	lead := ts[0].Shape[:ts[0].Rank()-1]
	total := 0
	for _, t := range ts {
		if t.Rank() != len(lead)+1 || !ShapesEqual(t.Shape[:t.Rank()-1], lead) {
			return nil, fmt.Errorf("concat: shape %v does not match leading dimensions %v", t.Shape, lead)
		}
		total += t.Dim(-1)
	}
	rows := calculateNumElements(lead)
	out := make([]float32, rows*total)
	off := 0
	for _, t := range ts {
		c := t.Dim(-1)
		for r := 0; r < rows; r++ {
			copy(out[r*total+off:r*total+off+c], t.Data[r*c:(r+1)*c])
		}
		off += c
	}
	shape := append(append([]int(nil), lead...), total)
	return NewTensor(shape, out)
}

// SliceLastAxis returns t[..., start:end].
func SliceLastAxis(t *Tensor, start, end int) (*Tensor, error) {
	c := t.Dim(-1)
	if start < 0 || end > c || start >= end {
		return nil, fmt.Errorf("slice [%d:%d] out of range for last dimension %d", start, end, c)
	}
	rows := t.NumElems / c
	w := end - start
	out := make([]float32, rows*w)
	for r := 0; r < rows; r++ {
		copy(out[r*w:(r+1)*w], t.Data[r*c+start:r*c+end])
	}
	shape := append([]int(nil), t.Shape...)
	shape[len(shape)-1] = w
	return NewTensor(shape, out)
}

// PadLastAxis places t's last dimension at offset start inside a zero
// tensor whose last dimension has size total.
func PadLastAxis(t *Tensor, start, total int) (*Tensor, error) {
	c := t.Dim(-1)
	if start < 0 || start+c > total {
		return nil, fmt.Errorf("cannot pad last dimension %d at offset %d into %d", c, start, total)
	}
	rows := t.NumElems / c
	out := make([]float32, rows*total)
	for r := 0; r < rows; r++ {
		copy(out[r*total+start:r*total+start+c], t.Data[r*c:(r+1)*c])
	}
	shape := append([]int(nil), t.Shape...)
	shape[len(shape)-1] = total
	return NewTensor(shape, out)
}

// SliceBatch returns rows [start, end) of the leading dimension. The
// result shares storage with t.
func SliceBatch(t *Tensor, start, end int) (*Tensor, error) {
	n := t.Shape[0]
	if start < 0 || end > n || start >= end {
		return nil, fmt.Errorf("batch slice [%d:%d] out of range for %d rows", start, end, n)
	}
	row := t.NumElems / n
	shape := append([]int{end - start}, t.Shape[1:]...)
	return NewTensor(shape, t.Data[start*row:end*row])
}
