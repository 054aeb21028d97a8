package progen

import (
	"fmt"

	"github.com/pkg/errors"
)

// AbsentValue is the reserved value a category slot takes when a caller
// supplies no tag for it.
const AbsentValue = "absent"

// UnknownValue is the reserved value an unrecognized tag value maps to
// within its category. Unknown values are never silently dropped.
const UnknownValue = "unknown"

// Category is one conditioning dimension: a name and the closed set of
// values the model was trained with.
type Category struct {
	Name   string
	Values []string
}

// Schema is the ordered list of conditioning categories. The order is
// canonical: the same semantic tag set always serializes to the same
// token prefix regardless of caller-supplied ordering.
type Schema struct {
	Categories []Category

	index map[string]int
}

// NewSchema builds a schema from ordered categories.
func NewSchema(categories ...Category) (*Schema, error) {
	if len(categories) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "schema must have at least one category")
	}

	index := make(map[string]int, len(categories))
	for i, cat := range categories {
		if cat.Name == "" {
			return nil, errors.Wrap(ErrInvalidConfig, "category name must not be empty")
		}
		if cat.Name == AbsentValue || cat.Name == UnknownValue {
			return nil, errors.Wrapf(ErrInvalidConfig, "category name %q is reserved", cat.Name)
		}
		if _, dup := index[cat.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidConfig, "duplicate category %q", cat.Name)
		}
		seen := make(map[string]bool, len(cat.Values))
		for _, v := range cat.Values {
			if v == AbsentValue || v == UnknownValue {
				return nil, errors.Wrapf(ErrInvalidConfig, "value %q in category %q is reserved", v, cat.Name)
			}
			if seen[v] {
				return nil, errors.Wrapf(ErrInvalidConfig, "duplicate value %q in category %q", v, cat.Name)
			}
			seen[v] = true
		}
		index[cat.Name] = i
	}

	return &Schema{Categories: categories, index: index}, nil
}

// NumCategories returns the fixed conditioning-prefix width.
func (s *Schema) NumCategories() int {
	return len(s.Categories)
}

// CategoryIndex returns the canonical position of a category, or -1 if
// the schema does not define it.
func (s *Schema) CategoryIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// HasValue reports whether the category defines the given value.
func (s *Schema) HasValue(catIdx int, value string) bool {
	for _, v := range s.Categories[catIdx].Values {
		if v == value {
			return true
		}
	}
	return false
}

// Equal reports whether two schemas define the same categories and
// values in the same order.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil || len(s.Categories) != len(other.Categories) {
		return false
	}
	for i, cat := range s.Categories {
		o := other.Categories[i]
		if cat.Name != o.Name || len(cat.Values) != len(o.Values) {
			return false
		}
		for j, v := range cat.Values {
			if v != o.Values[j] {
				return false
			}
		}
	}
	return true
}

// Tag is a single (category, value) conditioning constraint.
type Tag struct {
	Category string
	Value    string
}

func (t Tag) String() string {
	return fmt.Sprintf("%s=%s", t.Category, t.Value)
}

// TagSet is a caller-supplied collection of conditioning tags. Order
// and duplication are caller artifacts; Canonicalize resolves both.
type TagSet []Tag

// Canonicalize orders tags by schema position, dedupes repeated
// categories (last value wins), fills unsupplied categories with
// AbsentValue and maps unrecognized values to UnknownValue. The result
// always has exactly one tag per schema category. Fails with
// ErrInvalidTagCategory when a tag names a category outside the schema.
func (ts TagSet) Canonicalize(schema *Schema) (TagSet, error) {
	values := make([]string, schema.NumCategories())
	for i := range values {
		values[i] = AbsentValue
	}

	for _, tag := range ts {
		idx := schema.CategoryIndex(tag.Category)
		if idx < 0 {
			return nil, errors.Wrapf(ErrInvalidTagCategory, "category %q", tag.Category)
		}
		if tag.Value == AbsentValue || schema.HasValue(idx, tag.Value) {
			values[idx] = tag.Value
		} else {
			values[idx] = UnknownValue
		}
	}

	canonical := make(TagSet, schema.NumCategories())
	for i, cat := range schema.Categories {
		canonical[i] = Tag{Category: cat.Name, Value: values[i]}
	}
	return canonical, nil
}
