package progen

import "sync/atomic"

// Sequence tracks the token state of a single generation call: the
// seeded prompt (conditioning prefix plus begin marker) and every
// token emitted since.
type Sequence struct {
	SeqID           int64
	TokenIDs        []int
	NumPromptTokens int

	emitted map[int]int
}

var seqCounter int64

// NewSequence creates a sequence seeded with prompt tokens.
func NewSequence(promptIDs []int) *Sequence {
	seqID := atomic.AddInt64(&seqCounter, 1) - 1

	tokens := make([]int, len(promptIDs))
	copy(tokens, promptIDs)

	return &Sequence{
		SeqID:           seqID,
		TokenIDs:        tokens,
		NumPromptTokens: len(promptIDs),
		emitted:         make(map[int]int),
	}
}

// Len returns the number of tokens in the sequence.
func (s *Sequence) Len() int {
	return len(s.TokenIDs)
}

// NumCompletionTokens returns the number of emitted tokens.
func (s *Sequence) NumCompletionTokens() int {
	return len(s.TokenIDs) - s.NumPromptTokens
}

// CompletionTokenIDs returns the emitted token ids.
func (s *Sequence) CompletionTokenIDs() []int {
	return s.TokenIDs[s.NumPromptTokens:]
}

// AppendToken records an emitted token.
func (s *Sequence) AppendToken(tokenID int) {
	s.TokenIDs = append(s.TokenIDs, tokenID)
	s.emitted[tokenID]++
}

// EmittedCount returns how often tokenID has been emitted in this call.
func (s *Sequence) EmittedCount(tokenID int) int {
	return s.emitted[tokenID]
}

// EmittedTokens returns the distinct emitted token ids.
func (s *Sequence) EmittedTokens() map[int]int {
	return s.emitted
}
