package tensor

import "math"

// Backward counterparts of the forward ops, used by the training path.
// Conventions follow the forward shapes: for C = A @ B,
// gradA = gradC @ B^T and gradB = A^T @ gradC.

// MatMulBackward computes gradients for C = A @ B given gradC.
func MatMulBackward(a, b, gradC *Tensor) (gradA, gradB *Tensor) {
	gradA = MatMul(gradC, Transpose(b))
	gradB = MatMul(Transpose(a), gradC)
	return gradA, gradB
}

// SoftmaxBackward computes the gradient through a row-wise softmax,
// given the softmax output y and the upstream gradient.
func SoftmaxBackward(y, gradY *Tensor) *Tensor {
	rows, cols := y.Shape[0], y.Shape[1]
	result := NewTensor(y.Shape...)

	for i := 0; i < rows; i++ {
		yr := y.Data[i*cols : (i+1)*cols]
		gr := gradY.Data[i*cols : (i+1)*cols]
		out := result.Data[i*cols : (i+1)*cols]

		dot := float32(0)
		for j := range yr {
			dot += yr[j] * gr[j]
		}
		for j := range yr {
			out[j] = yr[j] * (gr[j] - dot)
		}
	}
	return result
}

// GELUBackward computes the gradient through the tanh-approximated GELU,
// given the pre-activation input x and the upstream gradient.
func GELUBackward(x, gradY *Tensor) *Tensor {
	result := NewTensor(x.Shape...)
	c := math.Sqrt(2.0 / math.Pi)
	for i, v := range x.Data {
		xf := float64(v)
		inner := c * (xf + 0.044715*xf*xf*xf)
		tanh := math.Tanh(inner)
		sech2 := 1 - tanh*tanh
		deriv := 0.5*(1+tanh) + 0.5*xf*sech2*c*(1+3*0.044715*xf*xf)
		result.Data[i] = gradY.Data[i] * float32(deriv)
	}
	return result
}
