package progen

import (
	"math"

	"github.com/pkg/errors"

	"progen-go/tensor"
)

// Example is one training record: a full token sequence (conditioning
// prefix, begin marker, residues, end marker) and a mask flagging the
// positions whose tokens are prediction targets.
type Example struct {
	IDs        []int
	TargetMask []bool
}

// MakeExample encodes a record and builds its target mask: residues
// and the end marker are targets; the conditioning prefix and the
// begin marker are context only.
func (t *Tokenizer) MakeExample(tags TagSet, residues string) (Example, error) {
	ids, err := t.Encode(tags, residues)
	if err != nil {
		return Example{}, err
	}
	mask := make([]bool, len(ids))
	prefixLen := t.vocab.Schema().NumCategories()
	for i := prefixLen + 1; i < len(ids); i++ {
		mask[i] = true
	}
	return Example{IDs: ids, TargetMask: mask}, nil
}

// targetPositions returns the effective target positions: masked, not
// in the conditioning prefix, and predictable (position > 0). The
// prefix is excluded from targets regardless of the mask, though it
// remains context for every later position.
func (m *Model) targetPositions(ids []int, mask []bool) []int {
	prefixLen := m.cfg.PrefixLen()
	var targets []int
	for t := 1; t < len(ids) && t < len(mask); t++ {
		if t < prefixLen {
			continue
		}
		if mask[t] {
			targets = append(targets, t)
		}
	}
	return targets
}

// Loss computes the masked next-token cross-entropy for one sequence.
// Returns the summed loss and the number of contributing targets. A
// record with no effective targets yields (0, 0) rather than failing.
func (m *Model) Loss(ids []int, mask []bool) (float32, int, error) {
	targets := m.targetPositions(ids, mask)
	if len(targets) == 0 {
		return 0, 0, nil
	}
	logits, err := m.Forward(ids, nil)
	if err != nil {
		return 0, 0, err
	}

	loss := float32(0)
	for _, t := range targets {
		loss += crossEntropy(logits.Row(t-1), ids[t])
	}
	return loss, len(targets), nil
}

// crossEntropy computes -log softmax(logits)[target] stably.
func crossEntropy(logits []float32, target int) float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sumExp := 0.0
	for _, v := range logits {
		sumExp += math.Exp(float64(v - maxLogit))
	}
	logSumExp := float64(maxLogit) + math.Log(sumExp)
	return float32(logSumExp - float64(logits[target]))
}

// LossAndGradients computes the mean masked cross-entropy over a batch
// along with gradients for every parameter. The batch is atomic: a
// non-finite loss or gradient anywhere fails the whole batch with
// ErrNumericFault and nothing is applied; committed parameters are
// never touched.
func (m *Model) LossAndGradients(batch []Example) (float32, *Gradients, error) {
	grads := NewGradients(m)

	totalWeight := 0
	for _, ex := range batch {
		totalWeight += len(m.targetPositions(ex.IDs, ex.TargetMask))
	}
	if totalWeight == 0 {
		return 0, grads, nil
	}
	invWeight := float32(1.0 / float64(totalWeight))

	totalLoss := float32(0)
	for _, ex := range batch {
		targets := m.targetPositions(ex.IDs, ex.TargetMask)
		if len(targets) == 0 {
			continue
		}

		logits, acts, err := m.trainForward(ex.IDs)
		if err != nil {
			return 0, nil, err
		}

		gradLogits := tensor.NewTensor(logits.Shape...)
		for _, t := range targets {
			totalLoss += crossEntropy(logits.Row(t-1), ex.IDs[t])

			probs := tensor.SoftmaxVec(logits.Row(t - 1))
			gradRow := gradLogits.Row(t - 1)
			for j := range gradRow {
				gradRow[j] += probs[j] * invWeight
			}
			gradRow[ex.IDs[t]] -= invWeight
		}

		m.backward(gradLogits, acts, grads)
	}

	meanLoss := totalLoss * invWeight
	if math.IsNaN(float64(meanLoss)) || math.IsInf(float64(meanLoss), 0) || !grads.IsFinite() {
		return 0, nil, errors.Wrap(ErrNumericFault, "batch produced non-finite loss or gradients")
	}
	return meanLoss, grads, nil
}
