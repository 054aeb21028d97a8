package progen

import (
	"math"
	"sync"
	"testing"

	"github.com/pkg/errors"
)

func newTestModel(t *testing.T, opts ...ConfigOption) *Model {
	t.Helper()
	base := []ConfigOption{
		WithEmbedDim(16),
		WithNumHeads(2),
		WithNumLayers(2),
		WithMaxContext(32),
	}
	cfg, err := NewConfig(testSchema(t), append(base, opts...)...)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	model, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	return model
}

func encodeTest(t *testing.T, m *Model, residues string) []int {
	t.Helper()
	ids, err := NewTokenizer(m.Vocab()).Encode(nil, residues)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return ids
}

func TestForwardShapes(t *testing.T) {
	m := newTestModel(t)
	ids := encodeTest(t, m, "MKVL")

	logits, err := m.Forward(ids, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	if logits.Shape[0] != len(ids) || logits.Shape[1] != m.Config().VocabSize {
		t.Errorf("unexpected logits shape %v", logits.Shape)
	}
}

func TestCacheEquivalence(t *testing.T) {
	m := newTestModel(t)
	ids := encodeTest(t, m, "MKVLAG")

	full, err := m.Forward(ids, nil)
	if err != nil {
		t.Fatalf("full forward: %v", err)
	}

	cache := m.NewCache()
	var lastRow []float32
	for i := 1; i <= len(ids); i++ {
		logits, err := m.Forward(ids[:i], cache)
		if err != nil {
			t.Fatalf("incremental forward at %d: %v", i, err)
		}
		lastRow = logits.Row(logits.Shape[0] - 1)
	}

	fullLast := full.Row(len(ids) - 1)
	for j := range fullLast {
		if math.Abs(float64(fullLast[j]-lastRow[j])) > 1e-4 {
			t.Fatalf("cache and full forward diverge at logit %d: %f vs %f", j, fullLast[j], lastRow[j])
		}
	}
}

func TestCausality(t *testing.T) {
	m := newTestModel(t)
	ids := encodeTest(t, m, "MKVLAG")

	before, err := m.Forward(ids, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	// Perturb the second-to-last token; everything before it must not move.
	perturbed := make([]int, len(ids))
	copy(perturbed, ids)
	j := len(ids) - 2
	perturbed[j] = m.Vocab().ResidueID('W')

	after, err := m.Forward(perturbed, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	for i := 0; i < j; i++ {
		rowB := before.Row(i)
		rowA := after.Row(i)
		for k := range rowB {
			if rowB[k] != rowA[k] {
				t.Fatalf("logits at position %d changed after perturbing position %d", i, j)
			}
		}
	}
}

func TestContextOverflowBoundary(t *testing.T) {
	m := newTestModel(t)
	maxCtx := m.Config().MaxContext

	atLimit := make([]int, maxCtx)
	for i := range atLimit {
		atLimit[i] = m.Vocab().ResidueID('A')
	}
	if _, err := m.Forward(atLimit, nil); err != nil {
		t.Fatalf("sequence exactly at max context must succeed: %v", err)
	}

	oneOver := append(atLimit, m.Vocab().ResidueID('A'))
	_, err := m.Forward(oneOver, nil)
	if !errors.Is(err, ErrContextOverflow) {
		t.Fatalf("expected ErrContextOverflow, got %v", err)
	}
}

func TestForwardCacheDesyncPanics(t *testing.T) {
	m := newTestModel(t)
	ids := encodeTest(t, m, "MK")

	cache := m.NewCache()
	if _, err := m.Forward(ids, cache); err != nil {
		t.Fatalf("forward: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic when the cache is ahead of the token count")
		}
	}()
	m.Forward(ids[:1], cache)
}

func TestConcurrentForwardIsSafe(t *testing.T) {
	m := newTestModel(t)
	ids := encodeTest(t, m, "MKVL")

	want, err := m.Forward(ids, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Forward(ids, m.NewCache())
			if err != nil {
				t.Errorf("concurrent forward: %v", err)
				return
			}
			for i := range want.Data {
				if want.Data[i] != got.Data[i] {
					t.Errorf("concurrent forward diverged at element %d", i)
					return
				}
			}
		}()
	}
	wg.Wait()
}
