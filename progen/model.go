package progen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"progen-go/tensor"
)

const normEps = 1e-5

func contextOverflow(n, max int) error {
	return errors.Wrapf(ErrContextOverflow, "%d tokens exceed max context %d", n, max)
}

// Block holds the parameters of one pre-norm transformer layer:
// gain-only layer norm into rotary multi-head attention, then gain-only
// layer norm into a GELU feed-forward, each with a residual connection.
type Block struct {
	AttnNorm *tensor.Tensor // [embed_dim]
	Wq       *tensor.Tensor // [embed_dim, embed_dim]
	Wk       *tensor.Tensor
	Wv       *tensor.Tensor
	Wo       *tensor.Tensor

	FFNorm *tensor.Tensor // [embed_dim]
	W1     *tensor.Tensor // [embed_dim, ff_dim]
	B1     *tensor.Tensor // [ff_dim]
	W2     *tensor.Tensor // [ff_dim, embed_dim]
	B2     *tensor.Tensor // [embed_dim]
}

// Model is the conditional causal transformer. Parameters are owned by
// the model and read-only during forward passes; concurrent callers
// are safe as long as each owns its decode cache.
type Model struct {
	cfg   *Config
	vocab *Vocabulary

	TokEmbed  *tensor.Tensor // [vocab, embed_dim]
	Blocks    []*Block
	FinalNorm *tensor.Tensor // [embed_dim]
	LMHead    *tensor.Tensor // [embed_dim, vocab]

	rope *tensor.RoPECache
}

// NewModel instantiates a model from a validated configuration with a
// deterministic weight initialization. Construction fails with
// ErrInvalidConfig; no partially-built model is returned.
func NewModel(cfg *Config) (*Model, error) {
	if cfg == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "config is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.VocabSize == 0 {
		cfg.VocabSize = NewVocabulary(cfg.Schema).Size()
	}

	m := &Model{
		cfg:   cfg,
		vocab: NewVocabulary(cfg.Schema),
		rope:  tensor.NewRoPECache(cfg.EmbedDim/cfg.NumHeads, cfg.MaxContext, cfg.RoPEBase),
	}

	rng := rand.New(rand.NewSource(42))
	d := cfg.EmbedDim
	ffDim := d * cfg.FFMult

	m.TokEmbed = randn(rng, cfg.VocabSize, d)
	m.FinalNorm = ones(d)
	m.LMHead = randn(rng, d, cfg.VocabSize)

	m.Blocks = make([]*Block, cfg.NumLayers)
	for i := range m.Blocks {
		m.Blocks[i] = &Block{
			AttnNorm: ones(d),
			Wq:       randn(rng, d, d),
			Wk:       randn(rng, d, d),
			Wv:       randn(rng, d, d),
			Wo:       randn(rng, d, d),
			FFNorm:   ones(d),
			W1:       randn(rng, d, ffDim),
			B1:       tensor.NewTensor(ffDim),
			W2:       randn(rng, ffDim, d),
			B2:       tensor.NewTensor(d),
		}
	}

	return m, nil
}

func randn(rng *rand.Rand, shape ...int) *tensor.Tensor {
	t := tensor.NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64() * 0.02)
	}
	return t
}

func ones(n int) *tensor.Tensor {
	t := tensor.NewTensor(n)
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}

// Config returns the model configuration.
func (m *Model) Config() *Config {
	return m.cfg
}

// Vocab returns the model vocabulary.
func (m *Model) Vocab() *Vocabulary {
	return m.vocab
}

// NewCache allocates a decode cache sized for this model.
func (m *Model) NewCache() *KVCache {
	return NewKVCache(m.cfg.NumLayers, m.cfg.MaxContext, m.cfg.EmbedDim)
}

// Parameters returns all trainable parameters in a fixed order.
func (m *Model) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{m.TokEmbed}
	for _, b := range m.Blocks {
		params = append(params, b.AttnNorm, b.Wq, b.Wk, b.Wv, b.Wo,
			b.FFNorm, b.W1, b.B1, b.W2, b.B2)
	}
	params = append(params, m.FinalNorm, m.LMHead)
	return params
}

// NumParameters returns the total trainable parameter count.
func (m *Model) NumParameters() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Size()
	}
	return n
}

// Forward computes next-token logits for a token sequence. With a nil
// cache the whole sequence is processed and logits for every position
// are returned. With a cache, only tokens past the cache cursor are
// computed and their logits returned; earlier entries are reused
// unchanged, and the two paths are numerically equivalent. Logits are
// unnormalized scores; no softmax is applied here.
//
// Fails with ErrContextOverflow when len(ids) exceeds the configured
// maximum context length.
func (m *Model) Forward(ids []int, cache *KVCache) (*tensor.Tensor, error) {
	n := len(ids)
	if n > m.cfg.MaxContext {
		return nil, contextOverflow(n, m.cfg.MaxContext)
	}
	if cache == nil {
		cache = m.NewCache()
	}
	start := cache.Len()
	if start >= n {
		// The cursor must trail the token count; anything else means
		// the call loop desynchronized and results would be wrong.
		panic(fmt.Sprintf("kv cache holds %d positions but forward got %d tokens", start, n))
	}

	d := m.cfg.EmbedDim
	heads := m.cfg.NumHeads
	headDim := d / heads
	newIDs := ids[start:]
	mTok := len(newIDs)

	// Token embeddings for the uncomputed suffix.
	x := tensor.NewTensor(mTok, d)
	for i, id := range newIDs {
		if id < 0 || id >= m.cfg.VocabSize {
			panic(fmt.Sprintf("token id %d outside vocabulary of size %d", id, m.cfg.VocabSize))
		}
		copy(x.Row(i), m.TokEmbed.Row(id))
	}

	for layer, blk := range m.Blocks {
		// Attention sublayer.
		normed := tensor.LayerNormGain(x, blk.AttnNorm, normEps)
		q := tensor.MatMul(normed, blk.Wq)
		k := tensor.MatMul(normed, blk.Wk)
		v := tensor.MatMul(normed, blk.Wv)

		for i := 0; i < mTok; i++ {
			pos := start + i
			m.rope.RotateRow(q.Row(i), pos, heads)
			m.rope.RotateRow(k.Row(i), pos, heads)
			cache.SetRow(layer, pos, k.Row(i), v.Row(i))
		}

		attnOut := tensor.NewTensor(mTok, d)
		scale := float32(1.0 / math.Sqrt(float64(headDim)))
		for i := 0; i < mTok; i++ {
			total := start + i + 1 // causal: positions 0..start+i
			qRow := q.Row(i)
			outRow := attnOut.Row(i)
			for h := 0; h < heads; h++ {
				qh := qRow[h*headDim : (h+1)*headDim]
				scores := make([]float32, total)
				for j := 0; j < total; j++ {
					kj := cache.KeyRow(layer, j)[h*headDim : (h+1)*headDim]
					dot := float32(0)
					for t := range qh {
						dot += qh[t] * kj[t]
					}
					scores[j] = dot * scale
				}
				weights := tensor.SoftmaxVec(scores)
				ctx := outRow[h*headDim : (h+1)*headDim]
				for j := 0; j < total; j++ {
					vj := cache.ValueRow(layer, j)[h*headDim : (h+1)*headDim]
					w := weights[j]
					for t := range ctx {
						ctx[t] += w * vj[t]
					}
				}
			}
		}

		proj := tensor.MatMul(attnOut, blk.Wo)
		x = tensor.Add(x, proj)

		// Feed-forward sublayer.
		normed = tensor.LayerNormGain(x, blk.FFNorm, normEps)
		hidden := tensor.MatMul(normed, blk.W1)
		addBiasRows(hidden, blk.B1)
		hidden = tensor.GELU(hidden)
		out := tensor.MatMul(hidden, blk.W2)
		addBiasRows(out, blk.B2)
		x = tensor.Add(x, out)
	}
	cache.Advance(mTok)

	final := tensor.LayerNormGain(x, m.FinalNorm, normEps)
	return tensor.MatMul(final, m.LMHead), nil
}

func addBiasRows(x, bias *tensor.Tensor) {
	rows, cols := x.Shape[0], x.Shape[1]
	for i := 0; i < rows; i++ {
		row := x.Data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] += bias.Data[j]
		}
	}
}
