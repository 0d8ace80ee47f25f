package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor wraps data in a tensor of the given shape. The data slice is
// used directly, not copied.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	n := calculateNumElements(shape)
	if len(data) != n {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, n)
	}
	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Data:     data,
		NumElems: n,
	}, nil
}

// MustNew is like NewTensor but panics on a shape mismatch. It is meant
// for shapes derived from other tensors.
func MustNew(shape []int, data []float32) *Tensor {
	t, err := NewTensor(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

func Zeros(shape []int) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	return NewTensor(shape, make([]float32, calculateNumElements(shape)))
}

// ZerosLike returns a zero tensor with the shape of t.
func ZerosLike(t *Tensor) *Tensor {
	return MustNew(t.Shape, make([]float32, t.NumElems))
}

func Ones(shape []int) (*Tensor, error) {
	return Full(shape, 1)
}

// OnesLike returns a tensor of ones with the shape of t.
func OnesLike(t *Tensor) *Tensor {
	return FullLike(t, 1)
}

func Full(shape []int, value float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	data := make([]float32, calculateNumElements(shape))
	for i := range data {
		data[i] = value
	}
	return NewTensor(shape, data)
}

// FullLike returns a tensor with the shape of t filled with value.
func FullLike(t *Tensor, value float32) *Tensor {
	data := make([]float32, t.NumElems)
	for i := range data {
		data[i] = value
	}
	return MustNew(t.Shape, data)
}

// FromScalar returns a shape [1] tensor.
func FromScalar(value float32) *Tensor {
	return MustNew([]int{1}, []float32{value})
}

// RandomNormal samples from N(mean, std^2).
func RandomNormal(shape []int, mean, std float32, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = mean + std*float32(rng.NormFloat64())
	}
	return t, nil
}

// TruncatedNormal samples from N(mean, std^2), redrawing values that fall
// more than two standard deviations from the mean.
func TruncatedNormal(shape []int, mean, std float32, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		v := rng.NormFloat64()
		for v < -2 || v > 2 {
			v = rng.NormFloat64()
		}
		t.Data[i] = mean + std*float32(v)
	}
	return t, nil
}

// RandomUniform samples from U[low, high).
func RandomUniform(shape []int, low, high float32, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	span := high - low
	for i := range t.Data {
		t.Data[i] = low + span*rng.Float32()
	}
	return t, nil
}
