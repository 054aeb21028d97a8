package progen

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"progen-go/tensor"
)

// TrainingConfig holds the training-loop hyperparameters.
type TrainingConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float32
	MinLR        float32
	WarmupSteps  int
	DecaySteps   int
	WeightDecay  float32
	ClipNorm     float32
	Seed         int64
	ShowProgress bool
}

// DefaultTrainingConfig returns sensible small-scale defaults.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Epochs:       1,
		BatchSize:    8,
		LearningRate: 3e-4,
		MinLR:        3e-5,
		WarmupSteps:  100,
		DecaySteps:   10000,
		WeightDecay:  0.01,
		ClipNorm:     1.0,
		Seed:         1,
		ShowProgress: true,
	}
}

// AdamW implements the AdamW optimizer with decoupled weight decay.
type AdamW struct {
	beta1, beta2 float32
	epsilon      float32
	weightDecay  float32
	step         int

	m map[*tensor.Tensor]*tensor.Tensor
	v map[*tensor.Tensor]*tensor.Tensor
}

// NewAdamW creates an optimizer for a parameter set.
func NewAdamW(params []*tensor.Tensor, weightDecay float32) *AdamW {
	opt := &AdamW{
		beta1:       0.9,
		beta2:       0.999,
		epsilon:     1e-8,
		weightDecay: weightDecay,
		m:           make(map[*tensor.Tensor]*tensor.Tensor, len(params)),
		v:           make(map[*tensor.Tensor]*tensor.Tensor, len(params)),
	}
	for _, p := range params {
		opt.m[p] = tensor.NewTensor(p.Shape...)
		opt.v[p] = tensor.NewTensor(p.Shape...)
	}
	return opt
}

// Step applies one update. This is the only place parameters mutate;
// callers must not run it concurrently with forward passes.
func (opt *AdamW) Step(grads *Gradients, lr float32) {
	opt.step++
	bc1 := 1 - float32(math.Pow(float64(opt.beta1), float64(opt.step)))
	bc2 := 1 - float32(math.Pow(float64(opt.beta2), float64(opt.step)))

	for p, mom := range opt.m {
		vel := opt.v[p]
		grad := grads.For(p)
		for i := range p.Data {
			g := grad.Data[i]
			mom.Data[i] = opt.beta1*mom.Data[i] + (1-opt.beta1)*g
			vel.Data[i] = opt.beta2*vel.Data[i] + (1-opt.beta2)*g*g

			mhat := mom.Data[i] / bc1
			vhat := vel.Data[i] / bc2

			p.Data[i] -= lr * (mhat/(float32(math.Sqrt(float64(vhat)))+opt.epsilon) + opt.weightDecay*p.Data[i])
		}
	}
}

// LRScheduler implements linear warmup followed by cosine decay.
type LRScheduler struct {
	baseLR, minLR float32
	warmupSteps   int
	decaySteps    int
	step          int
}

// NewLRScheduler creates a scheduler.
func NewLRScheduler(baseLR, minLR float32, warmupSteps, decaySteps int) *LRScheduler {
	return &LRScheduler{
		baseLR:      baseLR,
		minLR:       minLR,
		warmupSteps: warmupSteps,
		decaySteps:  decaySteps,
	}
}

// Next advances the schedule and returns the learning rate to use.
func (s *LRScheduler) Next() float32 {
	s.step++
	if s.step < s.warmupSteps {
		return s.baseLR * float32(s.step) / float32(s.warmupSteps)
	}
	if s.step < s.decaySteps {
		progress := float64(s.step-s.warmupSteps) / float64(s.decaySteps-s.warmupSteps)
		cosine := float32(0.5 * (1.0 + math.Cos(math.Pi*progress)))
		return s.minLR + (s.baseLR-s.minLR)*cosine
	}
	return s.minLR
}

// TrainStep runs one batch: loss, gradients, clipping, optimizer step.
// A numeric fault skips the batch whole and surfaces ErrNumericFault;
// committed parameters stay untouched.
func (m *Model) TrainStep(batch []Example, opt *AdamW, lr, clipNorm float32) (float32, error) {
	loss, grads, err := m.LossAndGradients(batch)
	if err != nil {
		return 0, err
	}
	if clipNorm > 0 {
		grads.ClipGlobalNorm(clipNorm)
	}
	opt.Step(grads, lr)
	return loss, nil
}

// Train runs the full training loop over a dataset of examples.
func (m *Model) Train(examples []Example, cfg TrainingConfig) error {
	if len(examples) == 0 {
		return errors.New("no training examples")
	}

	opt := NewAdamW(m.Parameters(), cfg.WeightDecay)
	sched := NewLRScheduler(cfg.LearningRate, cfg.MinLR, cfg.WarmupSteps, cfg.DecaySteps)
	rng := rand.New(rand.NewSource(cfg.Seed))

	log.Printf("training %s parameters on %s examples",
		humanize.Comma(int64(m.NumParameters())), humanize.Comma(int64(len(examples))))

	stepsPerEpoch := (len(examples) + cfg.BatchSize - 1) / cfg.BatchSize
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		order := rng.Perm(len(examples))

		var bar *progressbar.ProgressBar
		if cfg.ShowProgress {
			bar = progressbar.NewOptions(stepsPerEpoch,
				progressbar.OptionSetDescription(fmt.Sprintf("epoch %d/%d", epoch+1, cfg.Epochs)),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
			)
		}

		skipped := 0
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := make([]Example, 0, end-start)
			for _, idx := range order[start:end] {
				batch = append(batch, examples[idx])
			}

			lr := sched.Next()
			loss, err := m.TrainStep(batch, opt, lr, cfg.ClipNorm)
			if err != nil {
				if errors.Is(err, ErrNumericFault) {
					skipped++
					log.Printf("warning: skipping batch at %d: %v", start, err)
					continue
				}
				return err
			}

			if bar != nil {
				bar.Describe(fmt.Sprintf("epoch %d/%d loss=%.4f lr=%.2e", epoch+1, cfg.Epochs, loss, lr))
				bar.Add(1)
			}
		}
		if bar != nil {
			bar.Finish()
			fmt.Println()
		}
		if skipped > 0 {
			log.Printf("epoch %d: skipped %d faulted batches", epoch+1, skipped)
		}
	}
	return nil
}
