package tensor

import (
	"reflect"
	"testing"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b    []int
		want    []int
		wantErr bool
	}{
		{[]int{4, 1}, []int{3}, []int{4, 3}, false},
		{[]int{2, 8, 8, 10}, []int{2, 1, 1, 10}, []int{2, 8, 8, 10}, false},
		{[]int{1}, []int{5, 5}, []int{5, 5}, false},
		{[]int{3}, []int{4}, nil, true},
	}
	for _, tt := range tests {
		got, err := BroadcastShapes(tt.a, tt.b)
		if tt.wantErr {
			if err == nil {
				t.Errorf("BroadcastShapes(%v, %v) expected error", tt.a, tt.b)
			}
			continue
		}
		if err != nil || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("BroadcastShapes(%v, %v) = %v, %v; want %v", tt.a, tt.b, got, err, tt.want)
		}
	}
}

func TestBroadcastToAndSumTo(t *testing.T) {
	x := mustTensor(t, []int{2, 1, 3}, []float32{1, 2, 3, 4, 5, 6})
	y, err := BroadcastTo(x, []int{2, 4, 3})
	if err != nil {
		t.Fatalf("BroadcastTo failed: %v", err)
	}
	if y.Data[3] != 1 || y.Data[12] != 4 {
		t.Errorf("BroadcastTo data = %v", y.Data)
	}

	back, err := SumTo(y, []int{2, 1, 3})
	if err != nil {
		t.Fatalf("SumTo failed: %v", err)
	}
	if !AllClose(back, Scale(x, 4), 0, 0) {
		t.Errorf("SumTo = %v, want 4*x", back.Data)
	}

	leading, err := SumTo(y, []int{3})
	if err != nil {
		t.Fatalf("SumTo leading failed: %v", err)
	}
	if !reflect.DeepEqual(leading.Data, []float32{20, 28, 36}) {
		t.Errorf("SumTo leading = %v", leading.Data)
	}

	if _, err := BroadcastTo(x, []int{2, 4, 4}); err == nil {
		t.Error("expected broadcast error")
	}
}

func TestSumAxesAndMean(t *testing.T) {
	x := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	s, err := SumAxes(x, 0)
	if err != nil {
		t.Fatalf("SumAxes failed: %v", err)
	}
	if !reflect.DeepEqual(s.Shape, []int{1, 3}) || !reflect.DeepEqual(s.Data, []float32{5, 7, 9}) {
		t.Errorf("SumAxes(0) = %v %v", s.Shape, s.Data)
	}
	m, err := MeanAxes(x, -1)
	if err != nil {
		t.Fatalf("MeanAxes failed: %v", err)
	}
	if !reflect.DeepEqual(m.Data, []float32{2, 5}) {
		t.Errorf("MeanAxes(-1) = %v", m.Data)
	}
	all, _ := SumAxes(x)
	if all.NumElems != 1 || all.Data[0] != 21 {
		t.Errorf("SumAxes() = %v", all.Data)
	}
	if _, err := SumAxes(x, 0, 0); err == nil {
		t.Error("expected duplicate axis error")
	}
}
