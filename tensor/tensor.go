package tensor

import (
	"fmt"
	"strings"
)

// Tensor is a dense, row-major float32 array. Image batches use NHWC
// layout; a scalar is represented with shape [1].
type Tensor struct {
	Shape    []int
	Strides  []int
	Data     []float32
	NumElems int
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, elements=%d)", t.Shape, t.NumElems)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Dim returns the size of dimension i. Negative indices count from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.Shape)
	}
	return t.Shape[i]
}

// IsScalar reports whether the tensor holds exactly one element.
func (t *Tensor) IsScalar() bool {
	return t.NumElems == 1
}

// Item returns the single element of a one-element tensor.
func (t *Tensor) Item() (float32, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a single-element tensor, got shape %v", t.Shape)
	}
	return t.Data[0], nil
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(indices ...int) (float32, error) {
	off, err := t.offset(indices)
	if err != nil {
		return 0, err
	}
	return t.Data[off], nil
}

// SetAt writes the element at the given multi-dimensional index.
func (t *Tensor) SetAt(value float32, indices ...int) error {
	off, err := t.offset(indices)
	if err != nil {
		return err
	}
	t.Data[off] = value
	return nil
}

func (t *Tensor) offset(indices []int) (int, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("index rank %d does not match tensor rank %d", len(indices), len(t.Shape))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of bounds for dimension %d with size %d", idx, i, t.Shape[i])
		}
		off += idx * t.Strides[i]
	}
	return off, nil
}

func calculateStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("shape cannot be empty")
	}
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("dimension %d must be positive, got %d", i, d)
		}
	}
	return nil
}

// ShapesEqual reports whether two shapes are identical.
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatShape renders a shape as "4x64x64x3".
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	return strings.Join(parts, "x")
}
