package progen

import (
	"math"

	"progen-go/tensor"
)

// Gradients holds one gradient buffer per model parameter. Buffers are
// fresh per batch so a faulted batch can be dropped without touching
// committed parameters.
type Gradients struct {
	params []*tensor.Tensor
	grads  map[*tensor.Tensor]*tensor.Tensor
}

// NewGradients allocates zeroed gradient buffers for a model.
func NewGradients(m *Model) *Gradients {
	params := m.Parameters()
	g := &Gradients{
		params: params,
		grads:  make(map[*tensor.Tensor]*tensor.Tensor, len(params)),
	}
	for _, p := range params {
		g.grads[p] = tensor.NewTensor(p.Shape...)
	}
	return g
}

// For returns the gradient buffer of a parameter.
func (g *Gradients) For(p *tensor.Tensor) *tensor.Tensor {
	grad, ok := g.grads[p]
	if !ok {
		panic("gradient requested for unknown parameter")
	}
	return grad
}

// Accumulate adds delta into the gradient buffer of p.
func (g *Gradients) Accumulate(p, delta *tensor.Tensor) {
	tensor.AddInPlace(g.For(p), delta)
}

// GlobalNorm returns the L2 norm over all gradient buffers.
func (g *Gradients) GlobalNorm() float32 {
	sum := 0.0
	for _, p := range g.params {
		for _, v := range g.grads[p].Data {
			sum += float64(v) * float64(v)
		}
	}
	return float32(math.Sqrt(sum))
}

// ScaleAll multiplies every gradient by a factor.
func (g *Gradients) ScaleAll(factor float32) {
	for _, p := range g.params {
		for i := range g.grads[p].Data {
			g.grads[p].Data[i] *= factor
		}
	}
}

// ClipGlobalNorm rescales gradients so their global L2 norm does not
// exceed maxNorm.
func (g *Gradients) ClipGlobalNorm(maxNorm float32) {
	norm := g.GlobalNorm()
	if norm > maxNorm {
		g.ScaleAll(maxNorm / norm)
	}
}

// IsFinite reports whether every gradient element is finite.
func (g *Gradients) IsFinite() bool {
	for _, p := range g.params {
		if !g.grads[p].IsFinite() {
			return false
		}
	}
	return true
}
