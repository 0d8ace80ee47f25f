package layers

import (
	"math"
	"math/rand"

	"github.com/tsawler/go-vaegan/tensor"
)

// Initializer produces the initial value of a parameter.
type Initializer func(shape []int, rng *rand.Rand) (*tensor.Tensor, error)

// NormalInit samples from N(0, stddev^2).
func NormalInit(stddev float32) Initializer {
	return func(shape []int, rng *rand.Rand) (*tensor.Tensor, error) {
		return tensor.RandomNormal(shape, 0, stddev, rng)
	}
}

// TruncatedNormalInit samples from N(0, stddev^2) truncated at two
// standard deviations.
func TruncatedNormalInit(stddev float32) Initializer {
	return func(shape []int, rng *rand.Rand) (*tensor.Tensor, error) {
		return tensor.TruncatedNormal(shape, 0, stddev, rng)
	}
}

// ConstantInit fills the parameter with value.
func ConstantInit(value float32) Initializer {
	return func(shape []int, _ *rand.Rand) (*tensor.Tensor, error) {
		return tensor.Full(shape, value)
	}
}

// ZerosInit fills the parameter with zeros.
func ZerosInit() Initializer {
	return ConstantInit(0)
}

// XavierUniformInit samples uniformly in ±c*sqrt(6/(fanIn+fanOut)).
func XavierUniformInit(fanIn, fanOut int, c float64) Initializer {
	bound := float32(c * math.Sqrt(6/float64(fanIn+fanOut)))
	return func(shape []int, rng *rand.Rand) (*tensor.Tensor, error) {
		return tensor.RandomUniform(shape, -bound, bound, rng)
	}
}
