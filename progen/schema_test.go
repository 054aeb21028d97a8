package progen

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema(
		Category{Name: "organism", Values: []string{"human", "mouse"}},
		Category{Name: "keyword", Values: []string{"enzyme", "receptor"}},
	)
	require.NoError(t, err)
	return schema
}

func TestNewSchemaRejectsInvalid(t *testing.T) {
	tests := []struct {
		name       string
		categories []Category
	}{
		{"empty", nil},
		{"unnamed category", []Category{{Values: []string{"a"}}}},
		{"reserved category name", []Category{{Name: AbsentValue, Values: []string{"a"}}}},
		{"duplicate category", []Category{
			{Name: "organism", Values: []string{"a"}},
			{Name: "organism", Values: []string{"b"}},
		}},
		{"reserved value", []Category{{Name: "organism", Values: []string{UnknownValue}}}},
		{"duplicate value", []Category{{Name: "organism", Values: []string{"a", "a"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.categories...)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestCanonicalizeOrdersBySchema(t *testing.T) {
	schema := testSchema(t)

	// Caller order is keyword first; canonical order is organism first.
	got, err := TagSet{
		{Category: "keyword", Value: "enzyme"},
		{Category: "organism", Value: "mouse"},
	}.Canonicalize(schema)
	require.NoError(t, err)

	want := TagSet{
		{Category: "organism", Value: "mouse"},
		{Category: "keyword", Value: "enzyme"},
	}
	assert.Equal(t, want, got)
}

func TestCanonicalizeFillsAbsent(t *testing.T) {
	schema := testSchema(t)

	got, err := TagSet{{Category: "keyword", Value: "enzyme"}}.Canonicalize(schema)
	require.NoError(t, err)

	assert.Equal(t, AbsentValue, got[0].Value)
	assert.Equal(t, "enzyme", got[1].Value)
}

func TestCanonicalizeLastValueWins(t *testing.T) {
	schema := testSchema(t)

	got, err := TagSet{
		{Category: "organism", Value: "human"},
		{Category: "organism", Value: "mouse"},
	}.Canonicalize(schema)
	require.NoError(t, err)

	assert.Equal(t, "mouse", got[0].Value)
}

func TestCanonicalizeUnknownValueNotDropped(t *testing.T) {
	schema := testSchema(t)

	got, err := TagSet{{Category: "organism", Value: "axolotl"}}.Canonicalize(schema)
	require.NoError(t, err)

	assert.Equal(t, UnknownValue, got[0].Value)
}

func TestCanonicalizeUnknownCategoryFails(t *testing.T) {
	schema := testSchema(t)

	_, err := TagSet{{Category: "habitat", Value: "ocean"}}.Canonicalize(schema)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTagCategory))
}

func TestSchemaEqual(t *testing.T) {
	a := testSchema(t)
	b := testSchema(t)
	assert.True(t, a.Equal(b))

	c, err := NewSchema(Category{Name: "organism", Values: []string{"human"}})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}
