package progen

import (
	"context"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"

	"progen-go/tensor"
)

// Engine drives autoregressive generation against a model. It holds no
// mutable state of its own; every call owns its decode cache and
// random source, so concurrent calls are safe.
type Engine struct {
	model *Model
	tok   *Tokenizer
}

// NewEngine creates a generation engine for a model.
func NewEngine(model *Model) *Engine {
	return &Engine{
		model: model,
		tok:   NewTokenizer(model.Vocab()),
	}
}

// Tokenizer returns the engine's tokenizer.
func (e *Engine) Tokenizer() *Tokenizer {
	return e.tok
}

// StreamToken is one element of a generation stream: a sampled token
// id, or a terminal error.
type StreamToken struct {
	ID  int
	Err error
}

// Stream generates tokens lazily, conditioned on a tag set. The model
// is seeded with the conditioning prefix plus a begin marker in a
// single prefill pass; each subsequent step samples one token from the
// final-position logits. The stream ends when an end marker is sampled
// or MaxTokens tokens have been emitted. Hitting the context limit
// mid-generation truncates the stream to the tokens emitted so far.
//
// The channel closes when the call finishes; cancelling ctx abandons
// the call at the next step boundary. The decode cache is scoped to
// the call and released either way.
func (e *Engine) Stream(ctx context.Context, tags TagSet, params *SamplingParams) <-chan StreamToken {
	ch := make(chan StreamToken)

	go func() {
		defer close(ch)

		prefix, err := e.tok.Prefix(tags)
		if err != nil {
			emit(ctx, ch, StreamToken{Err: err})
			return
		}

		seed := params.Seed
		if seed == 0 {
			seed = rand.Int63()
		}
		rng := rand.New(rand.NewSource(seed))

		cache := e.model.NewCache()
		seq := NewSequence(append(prefix, BeginID))

		logits, err := e.model.Forward(seq.TokenIDs, cache)
		if err != nil {
			emit(ctx, ch, StreamToken{Err: err})
			return
		}
		last := logits.Row(logits.Shape[0] - 1)

		sampleCfg := tensor.SampleConfig{
			Temperature: params.Temperature,
			TopK:        params.TopK,
			TopP:        params.TopP,
		}

		for emitted := 0; emitted < params.MaxTokens; emitted++ {
			scores := applyRepetitionPenalty(last, seq, params.RepetitionPenalty)
			id := tensor.Sample(scores, sampleCfg, rng)

			if id == EndID && !params.IgnoreEnd {
				return
			}
			if !emit(ctx, ch, StreamToken{ID: id}) {
				return
			}
			seq.AppendToken(id)
			if emitted+1 == params.MaxTokens {
				return
			}

			logits, err = e.model.Forward(seq.TokenIDs, cache)
			if err != nil {
				if errors.Is(err, ErrContextOverflow) {
					// Truncate to what was emitted; not an error for
					// the caller.
					return
				}
				emit(ctx, ch, StreamToken{Err: err})
				return
			}
			last = logits.Row(logits.Shape[0] - 1)
		}
	}()

	return ch
}

func emit(ctx context.Context, ch chan<- StreamToken, t StreamToken) bool {
	select {
	case ch <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// applyRepetitionPenalty down-weights logits of tokens this call has
// already emitted: positive logits are divided by the penalty factor,
// negative ones multiplied. A factor of 1 is a no-op.
func applyRepetitionPenalty(logits []float32, seq *Sequence, penalty float32) []float32 {
	if penalty == 1.0 || len(seq.EmittedTokens()) == 0 {
		return logits
	}
	scores := make([]float32, len(logits))
	copy(scores, logits)
	for id := range seq.EmittedTokens() {
		if scores[id] > 0 {
			scores[id] /= penalty
		} else {
			scores[id] *= penalty
		}
	}
	return scores
}

// Generate produces a residue sequence conditioned on a tag set,
// collecting the stream until it finishes. Non-residue tokens (an end
// marker survived by IgnoreEnd, padding) are dropped from the result.
func (e *Engine) Generate(ctx context.Context, tags TagSet, params *SamplingParams) (string, error) {
	var sb strings.Builder
	for tok := range e.Stream(ctx, tags, params) {
		if tok.Err != nil {
			return "", tok.Err
		}
		if r, ok := e.model.Vocab().ResidueAt(tok.ID); ok {
			sb.WriteByte(r)
		}
	}
	if err := ctx.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// GenerateBatch generates one sequence per tag set, sequentially, with
// an optional progress bar.
func (e *Engine) GenerateBatch(ctx context.Context, tagSets []TagSet, params *SamplingParams, showProgress bool) ([]string, error) {
	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(tagSets),
			progressbar.OptionSetDescription("Generating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
	}

	outputs := make([]string, len(tagSets))
	for i, tags := range tagSets {
		out, err := e.Generate(ctx, tags, params)
		if err != nil {
			return nil, errors.Wrapf(err, "tag set %d", i)
		}
		outputs[i] = out
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return outputs, nil
}
