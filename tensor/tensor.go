package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense float32 array with row-major layout.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor creates a zero-filled tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:  make([]float32, size),
		Shape: shape,
	}
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.flatIndex(indices)]
}

// Set stores val at the given indices.
func (t *Tensor) Set(val float32, indices ...int) {
	t.Data[t.flatIndex(indices)] = val
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("wrong number of indices: got %d, want %d", len(indices), len(t.Shape)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.Shape...)
	copy(c.Data, t.Data)
	return c
}

// Reshape returns a view with a different shape over the same data.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	newSize := 1
	for _, dim := range shape {
		newSize *= dim
	}
	if newSize != t.Size() {
		panic(fmt.Sprintf("cannot reshape: size mismatch %d vs %d", newSize, t.Size()))
	}
	return &Tensor{
		Data:  t.Data,
		Shape: shape,
	}
}

// Row returns a view of row i of a 2D tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.Shape) != 2 {
		panic("Row requires a 2D tensor")
	}
	cols := t.Shape[1]
	return t.Data[i*cols : (i+1)*cols]
}

// MatMul performs matrix multiplication: [m,k] x [k,n] -> [m,n].
func MatMul(a, b *Tensor) *Tensor {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		panic("MatMul requires 2D tensors")
	}
	if a.Shape[1] != b.Shape[0] {
		panic(fmt.Sprintf("incompatible shapes: [%d,%d] x [%d,%d]", a.Shape[0], a.Shape[1], b.Shape[0], b.Shape[1]))
	}

	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	result := NewTensor(m, n)

	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := a.Data[i*k+p]
			if av == 0 {
				continue
			}
			row := result.Data[i*n : (i+1)*n]
			brow := b.Data[p*n : (p+1)*n]
			for j := range row {
				row[j] += av * brow[j]
			}
		}
	}

	return result
}

// Add performs element-wise addition.
func Add(a, b *Tensor) *Tensor {
	if len(a.Data) != len(b.Data) {
		panic("tensors must have same size")
	}
	result := NewTensor(a.Shape...)
	for i := range a.Data {
		result.Data[i] = a.Data[i] + b.Data[i]
	}
	return result
}

// AddInPlace accumulates b into a.
func AddInPlace(a, b *Tensor) {
	if len(a.Data) != len(b.Data) {
		panic("tensors must have same size")
	}
	for i := range a.Data {
		a.Data[i] += b.Data[i]
	}
}

// Scale multiplies all elements by a scalar.
func Scale(t *Tensor, factor float32) *Tensor {
	result := NewTensor(t.Shape...)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * factor
	}
	return result
}

// Transpose swaps dimensions of a 2D tensor.
func Transpose(t *Tensor) *Tensor {
	if len(t.Shape) != 2 {
		panic("Transpose requires 2D tensor")
	}
	m, n := t.Shape[0], t.Shape[1]
	result := NewTensor(n, m)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			result.Data[j*m+i] = t.Data[i*n+j]
		}
	}
	return result
}

// Softmax applies a row-wise softmax to a 2D tensor.
func Softmax(t *Tensor) *Tensor {
	if len(t.Shape) != 2 {
		panic("Softmax requires 2D tensor")
	}
	result := NewTensor(t.Shape...)
	rows, cols := t.Shape[0], t.Shape[1]
	for i := 0; i < rows; i++ {
		src := t.Data[i*cols : (i+1)*cols]
		dst := result.Data[i*cols : (i+1)*cols]
		softmaxInto(dst, src)
	}
	return result
}

// SoftmaxVec converts a logit slice to probabilities.
func SoftmaxVec(logits []float32) []float32 {
	probs := make([]float32, len(logits))
	softmaxInto(probs, logits)
	return probs
}

func softmaxInto(dst, src []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := float32(0)
	for i, v := range src {
		e := float32(math.Exp(float64(v - maxVal)))
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// GELU applies the tanh-approximated GELU activation.
func GELU(t *Tensor) *Tensor {
	result := NewTensor(t.Shape...)
	for i, x := range t.Data {
		result.Data[i] = gelu(x)
	}
	return result
}

func gelu(x float32) float32 {
	// 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
	x3 := x * x * x
	inner := math.Sqrt(2.0/math.Pi) * float64(x+0.044715*x3)
	return 0.5 * x * (1.0 + float32(math.Tanh(inner)))
}

// IsFinite reports whether every element is a finite number.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
