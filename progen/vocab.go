package progen

// Residues is the fixed amino-acid alphabet, in id order.
const Residues = "ACDEFGHIKLMNPQRSTVWY"

// UnknownResidue is the symbol any out-of-alphabet residue maps to.
const UnknownResidue = 'X'

// Structural token ids. These are fixed; the rest of the id space is
// laid out by the schema.
const (
	PadID   = 0
	BeginID = 1
	EndID   = 2

	numStructural = 3
)

// Vocabulary maps tokens to integer ids and back. The id space is
// partitioned into three disjoint ranges: structural, conditioning-tag
// (grouped by category, each with trailing absent and unknown slots)
// and residue. Mappings are bijective within the vocabulary.
type Vocabulary struct {
	schema      *Schema
	catBase     []int // id of the first value token of each category
	residueBase int
	size        int
}

// NewVocabulary lays out the id space for a schema.
func NewVocabulary(schema *Schema) *Vocabulary {
	v := &Vocabulary{
		schema:  schema,
		catBase: make([]int, schema.NumCategories()),
	}

	next := numStructural
	for i, cat := range schema.Categories {
		v.catBase[i] = next
		next += len(cat.Values) + 2 // values, absent, unknown
	}
	v.residueBase = next
	v.size = next + len(Residues) + 1 // residues plus unknown residue

	return v
}

// Size returns the total number of token ids.
func (v *Vocabulary) Size() int {
	return v.size
}

// Schema returns the conditioning schema the vocabulary was built from.
func (v *Vocabulary) Schema() *Schema {
	return v.schema
}

// TagID returns the id of a canonical tag value within a category.
// The value must be one of the category's values, AbsentValue or
// UnknownValue; anything else resolves to the category's unknown slot.
func (v *Vocabulary) TagID(catIdx int, value string) int {
	cat := v.schema.Categories[catIdx]
	base := v.catBase[catIdx]
	switch value {
	case AbsentValue:
		return base + len(cat.Values)
	case UnknownValue:
		return base + len(cat.Values) + 1
	}
	for j, val := range cat.Values {
		if val == value {
			return base + j
		}
	}
	return base + len(cat.Values) + 1
}

// TagAt resolves a tag-range id to its category index and value.
func (v *Vocabulary) TagAt(id int) (catIdx int, value string, ok bool) {
	if id < numStructural || id >= v.residueBase {
		return 0, "", false
	}
	for i := len(v.catBase) - 1; i >= 0; i-- {
		if id >= v.catBase[i] {
			cat := v.schema.Categories[i]
			off := id - v.catBase[i]
			switch {
			case off < len(cat.Values):
				return i, cat.Values[off], true
			case off == len(cat.Values):
				return i, AbsentValue, true
			default:
				return i, UnknownValue, true
			}
		}
	}
	return 0, "", false
}

// ResidueID returns the id of a residue symbol; out-of-alphabet
// symbols map to the unknown residue rather than failing.
func (v *Vocabulary) ResidueID(r byte) int {
	for i := 0; i < len(Residues); i++ {
		if Residues[i] == r {
			return v.residueBase + i
		}
	}
	return v.residueBase + len(Residues)
}

// ResidueAt resolves a residue-range id to its symbol.
func (v *Vocabulary) ResidueAt(id int) (byte, bool) {
	if id < v.residueBase || id >= v.size {
		return 0, false
	}
	off := id - v.residueBase
	if off == len(Residues) {
		return UnknownResidue, true
	}
	return Residues[off], true
}

// IsResidue reports whether id lies in the residue range.
func (v *Vocabulary) IsResidue(id int) bool {
	return id >= v.residueBase && id < v.size
}
