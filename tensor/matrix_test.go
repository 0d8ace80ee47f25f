package tensor

import (
	"reflect"
	"testing"
)

func TestMatMul(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b := mustTensor(t, []int{3, 2}, []float32{7, 8, 9, 10, 11, 12})
	got, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	want := []float32{58, 64, 139, 154}
	if !reflect.DeepEqual(got.Data, want) {
		t.Errorf("MatMul = %v, want %v", got.Data, want)
	}

	if _, err := MatMul(a, a); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMatMulTrans(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	at, err := Transpose2D(a)
	if err != nil {
		t.Fatalf("Transpose2D failed: %v", err)
	}
	if !reflect.DeepEqual(at.Shape, []int{3, 2}) || at.Data[1] != 4 {
		t.Fatalf("Transpose2D = %v %v", at.Shape, at.Data)
	}

	// a^T a computed both ways.
	direct, err := MatMul(at, a)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	viaFlag, err := MatMulTrans(a, a, true, false)
	if err != nil {
		t.Fatalf("MatMulTrans failed: %v", err)
	}
	if !AllClose(direct, viaFlag, 0, 0) {
		t.Errorf("MatMulTrans = %v, want %v", viaFlag.Data, direct.Data)
	}

	outer, err := MatMulTrans(a, a, false, true)
	if err != nil {
		t.Fatalf("MatMulTrans failed: %v", err)
	}
	if !reflect.DeepEqual(outer.Data, []float32{14, 32, 32, 77}) {
		t.Errorf("a a^T = %v", outer.Data)
	}
}

func TestReshape(t *testing.T) {
	x := mustTensor(t, []int{2, 6}, make([]float32, 12))
	y, err := x.Reshape([]int{3, -1})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if !reflect.DeepEqual(y.Shape, []int{3, 4}) {
		t.Errorf("inferred shape %v", y.Shape)
	}
	y.Data[0] = 5
	if x.Data[0] != 5 {
		t.Error("Reshape should share storage")
	}
	if _, err := x.Reshape([]int{5, -1}); err == nil {
		t.Error("expected indivisible reshape error")
	}
	if _, err := x.Reshape([]int{-1, -1}); err == nil {
		t.Error("expected error for two inferred dimensions")
	}
}
