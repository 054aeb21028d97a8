package tensor

import "math"

// LayerNormGain applies layer normalization with a learned gain and no
// offset, row-wise over the last dimension of a 2D tensor.
func LayerNormGain(x, gain *Tensor, eps float32) *Tensor {
	if len(x.Shape) != 2 {
		panic("LayerNormGain requires 2D tensor")
	}
	rows, cols := x.Shape[0], x.Shape[1]
	if gain.Size() != cols {
		panic("gain size must match last dimension")
	}

	result := NewTensor(x.Shape...)
	for i := 0; i < rows; i++ {
		row := x.Data[i*cols : (i+1)*cols]
		out := result.Data[i*cols : (i+1)*cols]

		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= float32(cols)

		variance := float32(0)
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= float32(cols)

		std := float32(math.Sqrt(float64(variance + eps)))
		for j, v := range row {
			out[j] = (v - mean) / std * gain.Data[j]
		}
	}
	return result
}

// LayerNormGainBackward computes gradients through LayerNormGain.
// Returns the gradient w.r.t. the input and the gain.
func LayerNormGainBackward(x, gain, gradY *Tensor, eps float32) (gradX, gradGain *Tensor) {
	rows, cols := x.Shape[0], x.Shape[1]
	gradX = NewTensor(x.Shape...)
	gradGain = NewTensor(gain.Shape...)

	n := float32(cols)
	for i := 0; i < rows; i++ {
		row := x.Data[i*cols : (i+1)*cols]
		gy := gradY.Data[i*cols : (i+1)*cols]
		gx := gradX.Data[i*cols : (i+1)*cols]

		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= n

		variance := float32(0)
		for _, v := range row {
			d := v - mean
			variance += d * d
		}
		variance /= n
		std := float32(math.Sqrt(float64(variance + eps)))

		// gradGain accumulates g_y * xhat; the input gradient follows
		// the standard layernorm identity with h = g_y * gain:
		//   gx = (h - mean(h) - xhat * mean(h * xhat)) / std
		var meanH, meanHXhat float32
		h := make([]float32, cols)
		xhat := make([]float32, cols)
		for j := range row {
			xhat[j] = (row[j] - mean) / std
			h[j] = gy[j] * gain.Data[j]
			gradGain.Data[j] += gy[j] * xhat[j]
			meanH += h[j]
			meanHXhat += h[j] * xhat[j]
		}
		meanH /= n
		meanHXhat /= n

		for j := range row {
			gx[j] = (h[j] - meanH - xhat[j]*meanHXhat) / std
		}
	}
	return gradX, gradGain
}
