package progen

import (
	"fmt"

	"progen-go/tensor"
)

// KVCache stores per-layer attention keys and values for all tokens a
// generation call has processed so far. Storage is pre-sized to the
// maximum context length with a single filled-length cursor, so
// appending never reallocates. A cache is owned by exactly one
// in-flight call and discarded when the call completes.
type KVCache struct {
	keys   []*tensor.Tensor // per layer [max_len, embed_dim]
	values []*tensor.Tensor
	filled int
	maxLen int
}

// NewKVCache allocates an empty cache for a model geometry.
func NewKVCache(numLayers, maxLen, embedDim int) *KVCache {
	kv := &KVCache{
		keys:   make([]*tensor.Tensor, numLayers),
		values: make([]*tensor.Tensor, numLayers),
		maxLen: maxLen,
	}
	for i := range kv.keys {
		kv.keys[i] = tensor.NewTensor(maxLen, embedDim)
		kv.values[i] = tensor.NewTensor(maxLen, embedDim)
	}
	return kv
}

// Len returns the number of cached positions.
func (kv *KVCache) Len() int {
	return kv.filled
}

// SetRow stores the key and value rows for a position being processed.
// The position must lie at or past the cursor; committed entries are
// never rewritten.
func (kv *KVCache) SetRow(layer, pos int, k, v []float32) {
	if pos < kv.filled || pos >= kv.maxLen {
		panic(fmt.Sprintf("kv cache write at position %d outside [%d,%d)", pos, kv.filled, kv.maxLen))
	}
	copy(kv.keys[layer].Row(pos), k)
	copy(kv.values[layer].Row(pos), v)
}

// KeyRow returns the cached key row for a position.
func (kv *KVCache) KeyRow(layer, pos int) []float32 {
	return kv.keys[layer].Row(pos)
}

// ValueRow returns the cached value row for a position.
func (kv *KVCache) ValueRow(layer, pos int) []float32 {
	return kv.values[layer].Row(pos)
}

// Advance commits n newly written positions.
func (kv *KVCache) Advance(n int) {
	if kv.filled+n > kv.maxLen {
		panic(fmt.Sprintf("kv cache overflow: %d + %d > %d", kv.filled, n, kv.maxLen))
	}
	kv.filled += n
}

// Reset rewinds the cursor so the storage can be reused.
func (kv *KVCache) Reset() {
	kv.filled = 0
}
