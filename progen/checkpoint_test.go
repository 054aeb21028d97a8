package progen

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	m := newTestModel(t)

	// Perturb a few weights so the round trip is not just verifying
	// the deterministic init.
	m.LMHead.Data[3] = 0.75
	m.Blocks[0].Wq.Data[0] = -0.5

	blob, err := m.ExportParameters()
	require.NoError(t, err)

	restored, err := ImportParameters(m.Config(), blob)
	require.NoError(t, err)

	ids := encodeTest(t, m, "MKV")
	want, err := m.Forward(ids, nil)
	require.NoError(t, err)
	got, err := restored.Forward(ids, nil)
	require.NoError(t, err)

	assert.Equal(t, want.Data, got.Data, "restored model must reproduce logits exactly")
}

func TestCheckpointConfigMismatch(t *testing.T) {
	m := newTestModel(t)
	blob, err := m.ExportParameters()
	require.NoError(t, err)

	schema := testSchema(t)

	other, err := NewConfig(schema,
		WithEmbedDim(16), WithNumHeads(2), WithNumLayers(3), WithMaxContext(32))
	require.NoError(t, err)

	_, err = ImportParameters(other, blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestCheckpointSchemaMismatch(t *testing.T) {
	m := newTestModel(t)
	blob, err := m.ExportParameters()
	require.NoError(t, err)

	schema, err := NewSchema(
		Category{Name: "organism", Values: []string{"human", "mouse"}},
		Category{Name: "family", Values: []string{"globin", "kinase"}},
	)
	require.NoError(t, err)

	cfg := m.Config()
	other, err := NewConfig(schema,
		WithEmbedDim(cfg.EmbedDim), WithNumHeads(cfg.NumHeads),
		WithNumLayers(cfg.NumLayers), WithMaxContext(cfg.MaxContext))
	require.NoError(t, err)

	_, err = ImportParameters(other, blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))
}

func TestCheckpointCorruptPayload(t *testing.T) {
	m := newTestModel(t)

	_, err := ImportParameters(m.Config(), []byte("not a checkpoint"))
	assert.Error(t, err)

	blob, err := m.ExportParameters()
	require.NoError(t, err)

	// Flip a byte deep in the weight payload; the checksum must catch it.
	mutated := make([]byte, len(blob))
	copy(mutated, blob)
	mutated[len(mutated)/2] ^= 0xFF
	_, err = ImportParameters(m.Config(), mutated)
	assert.Error(t, err)
}
