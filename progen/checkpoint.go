package progen

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// checkpointVersion tags the blob layout. Bump on incompatible change.
const checkpointVersion = 1

// checkpointConfig is the configuration echo recorded in a blob, used
// to reject imports into a differently-shaped model.
type checkpointConfig struct {
	VocabSize  int
	EmbedDim   int
	NumLayers  int
	NumHeads   int
	MaxContext int
	FFMult     int
	RoPEBase   float64
	Categories []Category
}

type checkpointBlob struct {
	Version  int
	RunID    string
	Config   checkpointConfig
	Weights  [][]float32
	Checksum uint64
}

func configEcho(cfg *Config) checkpointConfig {
	return checkpointConfig{
		VocabSize:  cfg.VocabSize,
		EmbedDim:   cfg.EmbedDim,
		NumLayers:  cfg.NumLayers,
		NumHeads:   cfg.NumHeads,
		MaxContext: cfg.MaxContext,
		FFMult:     cfg.FFMult,
		RoPEBase:   cfg.RoPEBase,
		Categories: cfg.Schema.Categories,
	}
}

func weightsChecksum(weights [][]float32) uint64 {
	h := xxhash.New()
	buf := make([]byte, 4)
	for _, w := range weights {
		for _, v := range w {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			h.Write(buf)
		}
	}
	return h.Sum64()
}

// ExportParameters serializes the parameter state as an opaque,
// versioned blob: a configuration echo, a fresh run id, the weight
// payload and an integrity checksum. File layout is the caller's
// concern.
func (m *Model) ExportParameters() ([]byte, error) {
	params := m.Parameters()
	weights := make([][]float32, len(params))
	for i, p := range params {
		w := make([]float32, len(p.Data))
		copy(w, p.Data)
		weights[i] = w
	}

	blob := checkpointBlob{
		Version:  checkpointVersion,
		RunID:    uuid.NewString(),
		Config:   configEcho(m.cfg),
		Weights:  weights,
		Checksum: weightsChecksum(weights),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&blob); err != nil {
		return nil, errors.Wrap(err, "encoding checkpoint")
	}
	return buf.Bytes(), nil
}

// ImportParameters builds a model from cfg and loads the blob's
// weights into it. Fails with ErrSchemaMismatch when the blob's
// recorded configuration disagrees with cfg, or when the payload is
// corrupt.
func ImportParameters(cfg *Config, data []byte) (*Model, error) {
	var blob checkpointBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&blob); err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}

	if blob.Version != checkpointVersion {
		return nil, errors.Wrapf(ErrSchemaMismatch, "checkpoint version %d, want %d", blob.Version, checkpointVersion)
	}
	if blob.Checksum != weightsChecksum(blob.Weights) {
		return nil, errors.Wrap(ErrSchemaMismatch, "weight payload checksum mismatch")
	}

	m, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}

	echo := configEcho(cfg)
	recorded := blob.Config
	recordedSchema, err := NewSchema(recorded.Categories...)
	if err != nil {
		return nil, errors.Wrap(ErrSchemaMismatch, "checkpoint schema is invalid")
	}
	if recorded.VocabSize != echo.VocabSize ||
		recorded.EmbedDim != echo.EmbedDim ||
		recorded.NumLayers != echo.NumLayers ||
		recorded.NumHeads != echo.NumHeads ||
		recorded.MaxContext != echo.MaxContext ||
		recorded.FFMult != echo.FFMult ||
		recorded.RoPEBase != echo.RoPEBase ||
		!cfg.Schema.Equal(recordedSchema) {
		return nil, errors.Wrap(ErrSchemaMismatch, "recorded configuration disagrees with instantiating configuration")
	}

	params := m.Parameters()
	if len(params) != len(blob.Weights) {
		return nil, errors.Wrapf(ErrSchemaMismatch, "checkpoint has %d tensors, model has %d", len(blob.Weights), len(params))
	}
	for i, p := range params {
		if len(p.Data) != len(blob.Weights[i]) {
			return nil, errors.Wrapf(ErrSchemaMismatch, "tensor %d has %d elements, model expects %d",
				i, len(blob.Weights[i]), len(p.Data))
		}
		copy(p.Data, blob.Weights[i])
	}
	return m, nil
}
