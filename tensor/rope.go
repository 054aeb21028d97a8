package tensor

import "math"

// RoPECache holds precomputed sin/cos tables for rotary position
// embeddings over a fixed maximum sequence length.
type RoPECache struct {
	CosCache  *Tensor // [max_seq_len, head_dim]
	SinCache  *Tensor // [max_seq_len, head_dim]
	HeadDim   int
	MaxSeqLen int
	Base      float64
}

// NewRoPECache precomputes rotary embeddings for all positions.
func NewRoPECache(headDim, maxSeqLen int, base float64) *RoPECache {
	cache := &RoPECache{
		HeadDim:   headDim,
		MaxSeqLen: maxSeqLen,
		Base:      base,
		CosCache:  NewTensor(maxSeqLen, headDim),
		SinCache:  NewTensor(maxSeqLen, headDim),
	}

	for pos := 0; pos < maxSeqLen; pos++ {
		for i := 0; i < headDim/2; i++ {
			freq := 1.0 / math.Pow(base, float64(2*i)/float64(headDim))
			angle := float64(pos) * freq

			cache.CosCache.Data[pos*headDim+2*i] = float32(math.Cos(angle))
			cache.CosCache.Data[pos*headDim+2*i+1] = float32(math.Cos(angle))
			cache.SinCache.Data[pos*headDim+2*i] = float32(math.Sin(angle))
			cache.SinCache.Data[pos*headDim+2*i+1] = float32(math.Sin(angle))
		}
	}

	return cache
}

// RotateRow applies the rotation for absolute position pos to a row
// holding numHeads consecutive head vectors, in place.
func (rc *RoPECache) RotateRow(row []float32, pos, numHeads int) {
	rc.rotate(row, pos, numHeads, 1)
}

// RotateRowInverse undoes RotateRow; the rotation is orthogonal, so the
// backward pass is a rotation by the negated angle.
func (rc *RoPECache) RotateRowInverse(row []float32, pos, numHeads int) {
	rc.rotate(row, pos, numHeads, -1)
}

func (rc *RoPECache) rotate(row []float32, pos, numHeads int, sign float32) {
	if pos >= rc.MaxSeqLen {
		panic("position exceeds rotary cache length")
	}
	if len(row) != numHeads*rc.HeadDim {
		panic("row length does not match heads * head_dim")
	}

	cacheOff := pos * rc.HeadDim
	for h := 0; h < numHeads; h++ {
		off := h * rc.HeadDim
		for i := 0; i < rc.HeadDim/2; i++ {
			idx := off + 2*i
			cos := rc.CosCache.Data[cacheOff+2*i]
			sin := sign * rc.SinCache.Data[cacheOff+2*i]

			v0 := row[idx]
			v1 := row[idx+1]
			row[idx] = v0*cos - v1*sin
			row[idx+1] = v0*sin + v1*cos
		}
	}
}
