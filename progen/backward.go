package progen

import (
	"math"

	"progen-go/tensor"
)

// Training-time forward and backward passes. Unlike Forward, the
// training pass stores every intermediate activation so gradients can
// be computed layer by layer in reverse. Structure follows the same
// block layout as Forward; the two must stay in lockstep.

type blockActs struct {
	x       *tensor.Tensor   // block input
	normed1 *tensor.Tensor   // after attention norm
	q, k, v *tensor.Tensor   // projections, q and k rotated
	weights []*tensor.Tensor // per-head attention weights [n, n]
	ctx     *tensor.Tensor   // concatenated head outputs
	x2      *tensor.Tensor   // after attention residual
	normed2 *tensor.Tensor   // after feed-forward norm
	hpre    *tensor.Tensor   // feed-forward pre-activation
	hact    *tensor.Tensor   // feed-forward post-GELU
}

type forwardActs struct {
	ids    []int
	blocks []*blockActs
	fnIn   *tensor.Tensor // input to the final norm
	fx     *tensor.Tensor // final norm output
}

// trainForward runs the full-sequence forward pass and keeps
// activations for the backward pass.
func (m *Model) trainForward(ids []int) (*tensor.Tensor, *forwardActs, error) {
	n := len(ids)
	if n > m.cfg.MaxContext {
		return nil, nil, contextOverflow(n, m.cfg.MaxContext)
	}

	d := m.cfg.EmbedDim
	heads := m.cfg.NumHeads
	headDim := d / heads

	acts := &forwardActs{
		ids:    ids,
		blocks: make([]*blockActs, m.cfg.NumLayers),
	}

	x := tensor.NewTensor(n, d)
	for i, id := range ids {
		copy(x.Row(i), m.TokEmbed.Row(id))
	}

	for layer, blk := range m.Blocks {
		ba := &blockActs{x: x}
		acts.blocks[layer] = ba

		ba.normed1 = tensor.LayerNormGain(x, blk.AttnNorm, normEps)
		ba.q = tensor.MatMul(ba.normed1, blk.Wq)
		ba.k = tensor.MatMul(ba.normed1, blk.Wk)
		ba.v = tensor.MatMul(ba.normed1, blk.Wv)
		for i := 0; i < n; i++ {
			m.rope.RotateRow(ba.q.Row(i), i, heads)
			m.rope.RotateRow(ba.k.Row(i), i, heads)
		}

		ba.ctx = tensor.NewTensor(n, d)
		ba.weights = make([]*tensor.Tensor, heads)
		scale := float32(1.0 / math.Sqrt(float64(headDim)))
		for h := 0; h < heads; h++ {
			qh := headView(ba.q, h, headDim)
			kh := headView(ba.k, h, headDim)
			vh := headView(ba.v, h, headDim)

			scores := tensor.MatMul(qh, tensor.Transpose(kh))
			for i := 0; i < n; i++ {
				row := scores.Row(i)
				for j := range row {
					if j > i {
						row[j] = -1e9
					} else {
						row[j] *= scale
					}
				}
			}
			ba.weights[h] = tensor.Softmax(scores)

			ctxh := tensor.MatMul(ba.weights[h], vh)
			writeHead(ba.ctx, ctxh, h, headDim)
		}

		proj := tensor.MatMul(ba.ctx, blk.Wo)
		ba.x2 = tensor.Add(x, proj)

		ba.normed2 = tensor.LayerNormGain(ba.x2, blk.FFNorm, normEps)
		ba.hpre = tensor.MatMul(ba.normed2, blk.W1)
		addBiasRows(ba.hpre, blk.B1)
		ba.hact = tensor.GELU(ba.hpre)
		out := tensor.MatMul(ba.hact, blk.W2)
		addBiasRows(out, blk.B2)
		x = tensor.Add(ba.x2, out)
	}

	acts.fnIn = x
	acts.fx = tensor.LayerNormGain(x, m.FinalNorm, normEps)
	return tensor.MatMul(acts.fx, m.LMHead), acts, nil
}

// backward propagates gradLogits through the model, accumulating
// parameter gradients into grads.
func (m *Model) backward(gradLogits *tensor.Tensor, acts *forwardActs, grads *Gradients) {
	d := m.cfg.EmbedDim
	heads := m.cfg.NumHeads
	headDim := d / heads
	n := len(acts.ids)
	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	// Output head.
	gradFx, gradLMHead := tensor.MatMulBackward(acts.fx, m.LMHead, gradLogits)
	grads.Accumulate(m.LMHead, gradLMHead)

	gradX, gradFinalGain := tensor.LayerNormGainBackward(acts.fnIn, m.FinalNorm, gradFx, normEps)
	grads.Accumulate(m.FinalNorm, gradFinalGain)

	for layer := m.cfg.NumLayers - 1; layer >= 0; layer-- {
		blk := m.Blocks[layer]
		ba := acts.blocks[layer]

		// Feed-forward sublayer: x3 = x2 + (GELU(normed2@W1+B1)@W2+B2).
		gradOut := gradX

		gradHact, gradW2 := tensor.MatMulBackward(ba.hact, blk.W2, gradOut)
		grads.Accumulate(blk.W2, gradW2)
		grads.Accumulate(blk.B2, colSum(gradOut))

		gradHpre := tensor.GELUBackward(ba.hpre, gradHact)
		gradNormed2, gradW1 := tensor.MatMulBackward(ba.normed2, blk.W1, gradHpre)
		grads.Accumulate(blk.W1, gradW1)
		grads.Accumulate(blk.B1, colSum(gradHpre))

		gradX2FromNorm, gradFFGain := tensor.LayerNormGainBackward(ba.x2, blk.FFNorm, gradNormed2, normEps)
		grads.Accumulate(blk.FFNorm, gradFFGain)

		gradX2 := tensor.Add(gradX, gradX2FromNorm)

		// Attention sublayer: x2 = x + (ctx@Wo).
		gradCtx, gradWo := tensor.MatMulBackward(ba.ctx, blk.Wo, gradX2)
		grads.Accumulate(blk.Wo, gradWo)

		gradQ := tensor.NewTensor(n, d)
		gradK := tensor.NewTensor(n, d)
		gradV := tensor.NewTensor(n, d)
		for h := 0; h < heads; h++ {
			qh := headView(ba.q, h, headDim)
			kh := headView(ba.k, h, headDim)
			vh := headView(ba.v, h, headDim)
			gradCtxh := headView(gradCtx, h, headDim)

			gradWeights, gradVh := tensor.MatMulBackward(ba.weights[h], vh, gradCtxh)
			gradScores := tensor.SoftmaxBackward(ba.weights[h], gradWeights)
			// Masked positions carry zero attention weight, so their
			// score gradients vanish; only the scale survives.
			gradScores = tensor.Scale(gradScores, scale)

			gradQh, gradKhT := tensor.MatMulBackward(qh, tensor.Transpose(kh), gradScores)
			gradKh := tensor.Transpose(gradKhT)

			writeHead(gradQ, gradQh, h, headDim)
			writeHead(gradK, gradKh, h, headDim)
			writeHead(gradV, gradVh, h, headDim)
		}

		// The rotary map is orthogonal per pair, so its backward pass
		// is the inverse rotation.
		for i := 0; i < n; i++ {
			m.rope.RotateRowInverse(gradQ.Row(i), i, heads)
			m.rope.RotateRowInverse(gradK.Row(i), i, heads)
		}

		gradNormed1 := tensor.NewTensor(n, d)
		for _, proj := range []struct {
			w    *tensor.Tensor
			grad *tensor.Tensor
		}{
			{blk.Wq, gradQ},
			{blk.Wk, gradK},
			{blk.Wv, gradV},
		} {
			gradIn, gradW := tensor.MatMulBackward(ba.normed1, proj.w, proj.grad)
			grads.Accumulate(proj.w, gradW)
			tensor.AddInPlace(gradNormed1, gradIn)
		}

		gradXFromNorm, gradAttnGain := tensor.LayerNormGainBackward(ba.x, blk.AttnNorm, gradNormed1, normEps)
		grads.Accumulate(blk.AttnNorm, gradAttnGain)

		gradX = tensor.Add(gradX2, gradXFromNorm)
	}

	// Embedding rows.
	embedGrad := grads.For(m.TokEmbed)
	for i, id := range acts.ids {
		row := embedGrad.Row(id)
		src := gradX.Row(i)
		for j := range row {
			row[j] += src[j]
		}
	}
}

// headView extracts one head's columns into a [n, head_dim] tensor.
func headView(x *tensor.Tensor, head, headDim int) *tensor.Tensor {
	n := x.Shape[0]
	out := tensor.NewTensor(n, headDim)
	for i := 0; i < n; i++ {
		copy(out.Row(i), x.Row(i)[head*headDim:(head+1)*headDim])
	}
	return out
}

// writeHead scatters a [n, head_dim] tensor back into one head's
// columns of a [n, embed_dim] tensor.
func writeHead(dst, src *tensor.Tensor, head, headDim int) {
	n := src.Shape[0]
	for i := 0; i < n; i++ {
		copy(dst.Row(i)[head*headDim:(head+1)*headDim], src.Row(i))
	}
}

func colSum(x *tensor.Tensor) *tensor.Tensor {
	rows, cols := x.Shape[0], x.Shape[1]
	out := tensor.NewTensor(cols)
	for i := 0; i < rows; i++ {
		row := x.Data[i*cols : (i+1)*cols]
		for j := range row {
			out.Data[j] += row[j]
		}
	}
	return out
}
