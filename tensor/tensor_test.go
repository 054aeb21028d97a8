package tensor

import (
	"math"
	"testing"
)

func TestMatMul(t *testing.T) {
	a := NewTensor(2, 3)
	copy(a.Data, []float32{1, 2, 3, 4, 5, 6})
	b := NewTensor(3, 2)
	copy(b.Data, []float32{7, 8, 9, 10, 11, 12})

	c := MatMul(a, b)

	expected := []float32{58, 64, 139, 154}
	for i, want := range expected {
		if c.Data[i] != want {
			t.Errorf("MatMul[%d] = %f, want %f", i, c.Data[i], want)
		}
	}
}

func TestMatMulShapeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on incompatible shapes")
		}
	}()
	MatMul(NewTensor(2, 3), NewTensor(2, 3))
}

func TestTranspose(t *testing.T) {
	a := NewTensor(2, 3)
	copy(a.Data, []float32{1, 2, 3, 4, 5, 6})

	at := Transpose(a)
	if at.Shape[0] != 3 || at.Shape[1] != 2 {
		t.Fatalf("unexpected transpose shape %v", at.Shape)
	}
	if at.At(0, 1) != 4 || at.At(2, 0) != 3 {
		t.Errorf("transpose content wrong: %v", at.Data)
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	x := NewTensor(3, 4)
	for i := range x.Data {
		x.Data[i] = float32(i) - 5
	}

	y := Softmax(x)
	for i := 0; i < 3; i++ {
		sum := float32(0)
		for j := 0; j < 4; j++ {
			sum += y.At(i, j)
		}
		if math.Abs(float64(sum)-1.0) > 1e-5 {
			t.Errorf("row %d sums to %f", i, sum)
		}
	}
}

func TestSoftmaxNumericalStability(t *testing.T) {
	x := NewTensor(1, 3)
	copy(x.Data, []float32{1000, 1001, 1002})

	y := Softmax(x)
	for i, v := range y.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			t.Fatalf("softmax[%d] is not finite: %f", i, v)
		}
	}
}

func TestGELU(t *testing.T) {
	x := NewTensor(3)
	copy(x.Data, []float32{0, 2, -10})

	y := GELU(x)
	if y.Data[0] != 0 {
		t.Errorf("GELU(0) = %f, want 0", y.Data[0])
	}
	if y.Data[1] < 1.9 || y.Data[1] > 2.0 {
		t.Errorf("GELU(2) = %f, want close to 2", y.Data[1])
	}
	if math.Abs(float64(y.Data[2])) > 1e-3 {
		t.Errorf("GELU(-10) = %f, want close to 0", y.Data[2])
	}
}

func TestReshapeSharesData(t *testing.T) {
	a := NewTensor(2, 3)
	b := a.Reshape(3, 2)
	b.Data[0] = 42
	if a.Data[0] != 42 {
		t.Error("reshape should share the underlying data")
	}
}

func TestIsFinite(t *testing.T) {
	a := NewTensor(2)
	if !a.IsFinite() {
		t.Error("zero tensor should be finite")
	}
	a.Data[1] = float32(math.NaN())
	if a.IsFinite() {
		t.Error("NaN should not be finite")
	}
}
