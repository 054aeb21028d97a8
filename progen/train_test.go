package progen

import (
	"math"
	"testing"
)

func trainingBatch(t *testing.T, m *Model) []Example {
	t.Helper()
	tok := NewTokenizer(m.Vocab())
	sequences := []struct {
		tags     TagSet
		residues string
	}{
		{TagSet{{Category: "organism", Value: "human"}}, "MKVLA"},
		{TagSet{{Category: "organism", Value: "mouse"}}, "MKVLG"},
		{TagSet{{Category: "keyword", Value: "enzyme"}}, "MAGWT"},
	}
	batch := make([]Example, 0, len(sequences))
	for _, s := range sequences {
		ex, err := tok.MakeExample(s.tags, s.residues)
		if err != nil {
			t.Fatalf("make example: %v", err)
		}
		batch = append(batch, ex)
	}
	return batch
}

func TestTrainStepReducesLoss(t *testing.T) {
	m := newTestModel(t)
	batch := trainingBatch(t, m)
	opt := NewAdamW(m.Parameters(), 0)

	first, err := m.TrainStep(batch, opt, 1e-2, 1.0)
	if err != nil {
		t.Fatalf("train step: %v", err)
	}

	var last float32
	for i := 0; i < 30; i++ {
		last, err = m.TrainStep(batch, opt, 1e-2, 1.0)
		if err != nil {
			t.Fatalf("train step %d: %v", i, err)
		}
	}

	if last >= first {
		t.Errorf("loss did not decrease after repeated steps on one batch: first %f, last %f", first, last)
	}
}

func TestTrainStepNumericFaultLeavesParamsUntouched(t *testing.T) {
	m := newTestModel(t)
	batch := trainingBatch(t, m)
	opt := NewAdamW(m.Parameters(), 0)

	before := make([]float32, len(m.LMHead.Data))
	copy(before, m.LMHead.Data)

	m.Blocks[0].W1.Data[0] = float32(math.Inf(1))
	_, err := m.TrainStep(batch, opt, 1e-2, 1.0)
	if err == nil {
		t.Fatal("expected a numeric fault")
	}

	for i, v := range m.LMHead.Data {
		if v != before[i] {
			t.Fatal("faulted batch must not modify committed parameters")
		}
	}
}

func TestAdamWMovesParameters(t *testing.T) {
	m := newTestModel(t)
	batch := trainingBatch(t, m)
	opt := NewAdamW(m.Parameters(), 0.01)

	before := make([]float32, len(m.LMHead.Data))
	copy(before, m.LMHead.Data)

	if _, err := m.TrainStep(batch, opt, 1e-3, 1.0); err != nil {
		t.Fatalf("train step: %v", err)
	}

	moved := false
	for i, v := range m.LMHead.Data {
		if v != before[i] {
			moved = true
			break
		}
	}
	if !moved {
		t.Error("optimizer step left the output projection unchanged")
	}
}

func TestLRSchedulerPhases(t *testing.T) {
	sched := NewLRScheduler(1.0, 0.1, 10, 100)

	// Warmup: strictly increasing toward the base rate.
	prev := sched.Next()
	for i := 1; i < 9; i++ {
		lr := sched.Next()
		if lr <= prev {
			t.Fatalf("warmup step %d: lr %f not increasing from %f", i, lr, prev)
		}
		prev = lr
	}

	// Decay: non-increasing from the peak down to the floor.
	peak := sched.Next()
	if peak != 1.0 {
		t.Errorf("expected base rate at end of warmup, got %f", peak)
	}
	prev = peak
	for i := 11; i < 100; i++ {
		lr := sched.Next()
		if lr > prev {
			t.Fatalf("decay step %d: lr %f increased from %f", i, lr, prev)
		}
		prev = lr
	}

	// Past the decay horizon the floor holds.
	for i := 0; i < 5; i++ {
		if lr := sched.Next(); lr != 0.1 {
			t.Fatalf("expected floor rate 0.1, got %f", lr)
		}
	}
}

func TestTrainRunsToCompletion(t *testing.T) {
	m := newTestModel(t)
	tok := NewTokenizer(m.Vocab())

	var examples []Example
	for _, res := range []string{"MKV", "MAG", "MKVLA", "MWT"} {
		ex, err := tok.MakeExample(nil, res)
		if err != nil {
			t.Fatalf("make example: %v", err)
		}
		examples = append(examples, ex)
	}

	cfg := DefaultTrainingConfig()
	cfg.Epochs = 2
	cfg.BatchSize = 2
	cfg.ShowProgress = false

	if err := m.Train(examples, cfg); err != nil {
		t.Fatalf("train: %v", err)
	}
}

func TestTrainRejectsEmptyDataset(t *testing.T) {
	m := newTestModel(t)
	if err := m.Train(nil, DefaultTrainingConfig()); err == nil {
		t.Error("expected an error for an empty dataset")
	}
}
