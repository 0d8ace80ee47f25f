package tensor

import (
	"math"
	"testing"
)

func mustTensor(t *testing.T, shape []int, data []float32) *Tensor {
	t.Helper()
	x, err := NewTensor(shape, data)
	if err != nil {
		t.Fatalf("NewTensor(%v) failed: %v", shape, err)
	}
	return x
}

func TestBinaryOps(t *testing.T) {
	a := mustTensor(t, []int{2, 2}, []float32{1, 2, 3, 4})
	b := mustTensor(t, []int{2, 2}, []float32{5, 6, 7, 8})

	tests := []struct {
		name string
		op   func(a, b *Tensor) (*Tensor, error)
		want []float32
	}{
		{"Add", Add, []float32{6, 8, 10, 12}},
		{"Sub", Sub, []float32{-4, -4, -4, -4}},
		{"Mul", Mul, []float32{5, 12, 21, 32}},
		{"Div", Div, []float32{0.2, 2.0 / 6, 3.0 / 7, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op(a, b)
			if err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			if !AllClose(got, mustTensor(t, []int{2, 2}, tt.want), 1e-6, 1e-6) {
				t.Errorf("%s = %v, want %v", tt.name, got.Data, tt.want)
			}
		})
	}
}

func TestBinaryOpsBroadcast(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	row := mustTensor(t, []int{3}, []float32{10, 20, 30})
	col := mustTensor(t, []int{2, 1}, []float32{100, 200})

	got, err := Add(a, row)
	if err != nil {
		t.Fatalf("Add with row failed: %v", err)
	}
	want := []float32{11, 22, 33, 14, 25, 36}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("Add with row = %v, want %v", got.Data, want)
		}
	}

	got, err = Mul(col, a)
	if err != nil {
		t.Fatalf("Mul with column failed: %v", err)
	}
	want = []float32{100, 200, 300, 800, 1000, 1200}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("Mul with column = %v, want %v", got.Data, want)
		}
	}

	if _, err := Add(a, mustTensor(t, []int{2}, []float32{1, 2})); err == nil {
		t.Error("expected broadcast error")
	}
}

func TestUnaryOps(t *testing.T) {
	x := mustTensor(t, []int{4}, []float32{-2, -0.5, 0.5, 2})
	if got := ReLU(x).Data; got[0] != 0 || got[3] != 2 {
		t.Errorf("ReLU = %v", got)
	}
	if got := LeakyReLU(x, 0.2).Data; math.Abs(float64(got[0]+0.4)) > 1e-6 || got[2] != 0.5 {
		t.Errorf("LeakyReLU = %v", got)
	}
	if got := LeakyMask(x, 0.2).Data; got[0] != 0.2 || got[3] != 1 {
		t.Errorf("LeakyMask = %v", got)
	}
	if got := Abs(x).Data; got[0] != 2 || got[1] != 0.5 {
		t.Errorf("Abs = %v", got)
	}
	if got := Sign(x).Data; got[0] != -1 || got[3] != 1 {
		t.Errorf("Sign = %v", got)
	}
	if got := Square(x).Data; got[0] != 4 {
		t.Errorf("Square = %v", got)
	}
}

func TestSigmoidStable(t *testing.T) {
	x := mustTensor(t, []int{3}, []float32{-1000, 0, 1000})
	got := Sigmoid(x)
	if !got.IsFinite() {
		t.Fatalf("Sigmoid produced non-finite values: %v", got.Data)
	}
	if got.Data[0] != 0 || got.Data[1] != 0.5 || got.Data[2] != 1 {
		t.Errorf("Sigmoid = %v", got.Data)
	}
}

func TestScaleAndAccumulate(t *testing.T) {
	a := mustTensor(t, []int{3}, []float32{1, 2, 3})
	s := Scale(a, 2)
	if s.Data[2] != 6 || a.Data[2] != 3 {
		t.Errorf("Scale modified input or returned wrong result: %v %v", s.Data, a.Data)
	}
	if err := AddInPlace(s, a); err != nil {
		t.Fatalf("AddInPlace failed: %v", err)
	}
	if s.Data[0] != 3 {
		t.Errorf("AddInPlace = %v", s.Data)
	}
	d, err := Dot(a, a)
	if err != nil || d != 14 {
		t.Errorf("Dot = %v, %v", d, err)
	}
}
