package progen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyPartition(t *testing.T) {
	schema, err := NewSchema(
		Category{Name: "organism", Values: []string{"human"}},
		Category{Name: "keyword", Values: []string{"enzyme"}},
	)
	require.NoError(t, err)
	vocab := NewVocabulary(schema)

	// 3 structural + (1+2) organism + (1+2) keyword + 20 residues + X.
	assert.Equal(t, 3+3+3+21, vocab.Size())

	// Every id resolves to exactly one range.
	for id := 0; id < vocab.Size(); id++ {
		structural := id == PadID || id == BeginID || id == EndID
		_, _, isTag := vocab.TagAt(id)
		_, isRes := vocab.ResidueAt(id)

		count := 0
		for _, in := range []bool{structural, isTag, isRes} {
			if in {
				count++
			}
		}
		assert.Equalf(t, 1, count, "id %d resolves to %d ranges", id, count)
	}
}

// The worked example: organism/keyword schema, tag set [(keyword,enzyme)],
// residues "MK".
func TestEncodeWorkedExample(t *testing.T) {
	schema, err := NewSchema(
		Category{Name: "organism", Values: []string{"human"}},
		Category{Name: "keyword", Values: []string{"enzyme"}},
	)
	require.NoError(t, err)
	tok := NewTokenizer(NewVocabulary(schema))

	ids, err := tok.Encode(TagSet{{Category: "keyword", Value: "enzyme"}}, "MK")
	require.NoError(t, err)

	vocab := tok.Vocab()
	want := []int{
		vocab.TagID(0, AbsentValue), // organism absent
		vocab.TagID(1, "enzyme"),
		BeginID,
		vocab.ResidueID('M'),
		vocab.ResidueID('K'),
		EndID,
	}
	assert.Equal(t, want, ids)

	tags, residues, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, TagSet{
		{Category: "organism", Value: AbsentValue},
		{Category: "keyword", Value: "enzyme"},
	}, tags)
	assert.Equal(t, "MK", residues)
}

func TestEncodeUnknownResidueMapsToX(t *testing.T) {
	tok := NewTokenizer(NewVocabulary(testSchema(t)))

	ids, err := tok.Encode(nil, "MBZ")
	require.NoError(t, err)

	_, residues, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "MXX", residues)
}

func TestEncodeInvalidCategoryFails(t *testing.T) {
	tok := NewTokenizer(NewVocabulary(testSchema(t)))

	_, err := tok.Encode(TagSet{{Category: "habitat", Value: "ocean"}}, "MK")
	assert.ErrorIs(t, err, ErrInvalidTagCategory)
}

func TestRoundTripRandomSequences(t *testing.T) {
	schema := testSchema(t)
	tok := NewTokenizer(NewVocabulary(schema))
	rng := rand.New(rand.NewSource(99))

	values := [][]string{
		{"human", "mouse", AbsentValue},
		{"enzyme", "receptor", AbsentValue},
	}

	for trial := 0; trial < 50; trial++ {
		var tags TagSet
		for c, cat := range schema.Categories {
			v := values[c][rng.Intn(len(values[c]))]
			if v != AbsentValue {
				tags = append(tags, Tag{Category: cat.Name, Value: v})
			}
		}

		n := rng.Intn(30)
		residues := make([]byte, n)
		for i := range residues {
			residues[i] = Residues[rng.Intn(len(Residues))]
		}

		ids, err := tok.Encode(tags, string(residues))
		require.NoError(t, err)

		gotTags, gotResidues, err := tok.Decode(ids)
		require.NoError(t, err)

		wantTags, err := tags.Canonicalize(schema)
		require.NoError(t, err)
		assert.Equal(t, wantTags, gotTags)
		assert.Equal(t, string(residues), gotResidues)
	}
}

func TestDecodeToleratesPadding(t *testing.T) {
	tok := NewTokenizer(NewVocabulary(testSchema(t)))

	ids, err := tok.Encode(nil, "MK")
	require.NoError(t, err)
	ids = append(ids, PadID, PadID)

	_, residues, err := tok.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "MK", residues)
}

func TestDecodeRejectsMalformedPrefix(t *testing.T) {
	tok := NewTokenizer(NewVocabulary(testSchema(t)))

	// A residue token where a tag is expected.
	ids := []int{tok.Vocab().ResidueID('M'), tok.Vocab().TagID(1, AbsentValue), BeginID, EndID}
	_, _, err := tok.Decode(ids)
	assert.Error(t, err)
}

func TestPrefixIsFixedWidth(t *testing.T) {
	tok := NewTokenizer(NewVocabulary(testSchema(t)))

	none, err := tok.Prefix(nil)
	require.NoError(t, err)
	all, err := tok.Prefix(TagSet{
		{Category: "organism", Value: "human"},
		{Category: "keyword", Value: "enzyme"},
	})
	require.NoError(t, err)

	assert.Len(t, none, 2)
	assert.Len(t, all, 2)
}
