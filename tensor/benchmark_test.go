package tensor

import (
	"math/rand"
	"testing"
)

// Benchmark tensor creation functions
func BenchmarkZeros(b *testing.B) {
	shapes := [][]int{
		{100},
		{100, 100},
		{10, 10, 10},
		{64, 64, 64, 3},
	}

	for _, shape := range shapes {
		b.Run(FormatShape(shape), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Zeros(shape); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMatMul(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	sizes := []struct{ m, k, n int }{
		{64, 100, 64},
		{64, 1024, 256},
		{64, 8192, 1},
	}

	for _, s := range sizes {
		a, _ := RandomNormal([]int{s.m, s.k}, 0, 1, rng)
		w, _ := RandomNormal([]int{s.k, s.n}, 0, 1, rng)
		b.Run(FormatShape([]int{s.m, s.k, s.n}), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := MatMul(a, w); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkConv2D(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		input  []int
		filter []int
	}{
		{[]int{16, 64, 64, 3}, []int{5, 5, 3, 64}},
		{[]int{16, 32, 32, 64}, []int{5, 5, 64, 128}},
	}

	for _, c := range cases {
		x, _ := RandomNormal(c.input, 0, 1, rng)
		f, _ := RandomNormal(c.filter, 0, 0.02, rng)
		b.Run(FormatShape(c.input), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Conv2D(x, f, 2); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSumAxes(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	x, _ := RandomNormal([]int{64, 32, 32, 128}, 0, 1, rng)

	for i := 0; i < b.N; i++ {
		if _, err := SumAxes(x, 0, 1, 2); err != nil {
			b.Fatal(err)
		}
	}
}
