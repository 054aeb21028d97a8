package progen

import "fmt"

// SamplingParams holds the decoding controls for one generation call.
type SamplingParams struct {
	Temperature       float32
	TopK              int     // 0 disables top-k filtering
	TopP              float32 // 1.0 disables nucleus filtering
	RepetitionPenalty float32 // 1.0 disables the penalty
	MaxTokens         int
	Seed              int64 // fixed seed gives reproducible output
	IgnoreEnd         bool
}

// SamplingOption is a functional option for SamplingParams.
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates SamplingParams with default values.
func NewSamplingParams(opts ...SamplingOption) *SamplingParams {
	sp := &SamplingParams{
		Temperature:       1.0,
		TopK:              0,
		TopP:              1.0,
		RepetitionPenalty: 1.0,
		MaxTokens:         128,
		Seed:              0,
		IgnoreEnd:         false,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.validate(); err != nil {
		panic(err)
	}

	return sp
}

func (sp *SamplingParams) validate() error {
	if sp.Temperature <= 1e-10 {
		return fmt.Errorf("greedy sampling is not permitted (temperature too low)")
	}
	if sp.TopK < 0 {
		return fmt.Errorf("top-k must be non-negative")
	}
	if sp.TopP <= 0 || sp.TopP > 1.0 {
		return fmt.Errorf("top-p must be in (0, 1]")
	}
	if sp.RepetitionPenalty <= 0 {
		return fmt.Errorf("repetition penalty must be positive")
	}
	if sp.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be non-negative")
	}
	return nil
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) SamplingOption {
	return func(sp *SamplingParams) { sp.Temperature = t }
}

// WithTopK restricts sampling to the k highest-probability tokens.
func WithTopK(k int) SamplingOption {
	return func(sp *SamplingParams) { sp.TopK = k }
}

// WithTopP restricts sampling to the smallest nucleus whose cumulative
// probability reaches p. When combined with top-k, top-k applies first.
func WithTopP(p float32) SamplingOption {
	return func(sp *SamplingParams) { sp.TopP = p }
}

// WithRepetitionPenalty down-weights logits of already-emitted tokens.
func WithRepetitionPenalty(penalty float32) SamplingOption {
	return func(sp *SamplingParams) { sp.RepetitionPenalty = penalty }
}

// WithMaxTokens caps the number of tokens emitted.
func WithMaxTokens(n int) SamplingOption {
	return func(sp *SamplingParams) { sp.MaxTokens = n }
}

// WithSeed fixes the random source, making output reproducible.
func WithSeed(seed int64) SamplingOption {
	return func(sp *SamplingParams) { sp.Seed = seed }
}

// WithIgnoreEnd keeps generating past the end marker up to MaxTokens.
func WithIgnoreEnd(b bool) SamplingOption {
	return func(sp *SamplingParams) { sp.IgnoreEnd = b }
}
