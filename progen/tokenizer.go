package progen

import (
	"strings"

	"github.com/pkg/errors"
)

// Tokenizer converts (tag set, residue sequence) pairs to token ids
// and back. Decode is the exact left inverse of Encode for any
// sequence this tokenizer produced.
type Tokenizer struct {
	vocab *Vocabulary
}

// NewTokenizer creates a tokenizer over a vocabulary.
func NewTokenizer(vocab *Vocabulary) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Vocab returns the underlying vocabulary.
func (t *Tokenizer) Vocab() *Vocabulary {
	return t.vocab
}

// Prefix serializes a tag set into the canonical fixed-width
// conditioning prefix: one token per schema category, in schema order,
// with explicit absent tokens for unsupplied categories. Pure function.
func (t *Tokenizer) Prefix(tags TagSet) ([]int, error) {
	canonical, err := tags.Canonicalize(t.vocab.Schema())
	if err != nil {
		return nil, err
	}
	prefix := make([]int, len(canonical))
	for i, tag := range canonical {
		prefix[i] = t.vocab.TagID(i, tag.Value)
	}
	return prefix, nil
}

// Encode produces the full token sequence for a record: conditioning
// prefix, begin marker, residues, end marker. Residues outside the
// alphabet map to the unknown residue rather than failing.
func (t *Tokenizer) Encode(tags TagSet, residues string) ([]int, error) {
	prefix, err := t.Prefix(tags)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(prefix)+len(residues)+2)
	ids = append(ids, prefix...)
	ids = append(ids, BeginID)
	for i := 0; i < len(residues); i++ {
		ids = append(ids, t.vocab.ResidueID(residues[i]))
	}
	ids = append(ids, EndID)
	return ids, nil
}

// Decode recovers the canonical tag set and residue string from a
// token sequence produced by Encode. Trailing padding is tolerated; an
// unterminated sequence decodes to the residues emitted so far.
func (t *Tokenizer) Decode(ids []int) (TagSet, string, error) {
	numCats := t.vocab.Schema().NumCategories()
	if len(ids) < numCats+1 {
		return nil, "", errors.Errorf("token sequence too short: %d tokens, prefix needs %d", len(ids), numCats)
	}

	tags := make(TagSet, numCats)
	for i := 0; i < numCats; i++ {
		catIdx, value, ok := t.vocab.TagAt(ids[i])
		if !ok || catIdx != i {
			return nil, "", errors.Errorf("token %d at prefix slot %d is not a tag for category %q",
				ids[i], i, t.vocab.Schema().Categories[i].Name)
		}
		tags[i] = Tag{Category: t.vocab.Schema().Categories[i].Name, Value: value}
	}

	if ids[numCats] != BeginID {
		return nil, "", errors.Errorf("expected begin marker after prefix, got token %d", ids[numCats])
	}

	var sb strings.Builder
	for _, id := range ids[numCats+1:] {
		if id == EndID {
			break
		}
		if id == PadID {
			continue
		}
		r, ok := t.vocab.ResidueAt(id)
		if !ok {
			return nil, "", errors.Errorf("token %d in residue region is not a residue", id)
		}
		sb.WriteByte(r)
	}

	return tags, sb.String(), nil
}
