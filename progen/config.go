package progen

import (
	"github.com/pkg/errors"
)

// Config holds the model hyperparameters. All sizes are fixed once a
// model is instantiated from it.
type Config struct {
	Schema     *Schema
	VocabSize  int // 0 derives the size from the schema
	EmbedDim   int
	NumLayers  int
	NumHeads   int
	MaxContext int
	FFMult     int
	RoPEBase   float64
}

// ConfigOption is a functional option for Config.
type ConfigOption func(*Config)

// NewConfig creates a validated Config. Construction fails with
// ErrInvalidConfig; no partially-built configuration is returned.
func NewConfig(schema *Schema, opts ...ConfigOption) (*Config, error) {
	c := &Config{
		Schema:     schema,
		EmbedDim:   64,
		NumLayers:  4,
		NumHeads:   4,
		MaxContext: 512,
		FFMult:     4,
		RoPEBase:   10000.0,
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.VocabSize == 0 {
		c.VocabSize = NewVocabulary(c.Schema).Size()
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Schema == nil {
		return errors.Wrap(ErrInvalidConfig, "schema is required")
	}
	if c.EmbedDim <= 0 || c.NumLayers <= 0 || c.NumHeads <= 0 || c.MaxContext <= 0 || c.FFMult <= 0 {
		return errors.Wrap(ErrInvalidConfig, "all dimensions must be positive")
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return errors.Wrapf(ErrInvalidConfig, "head count %d does not evenly divide embedding width %d",
			c.NumHeads, c.EmbedDim)
	}
	headDim := c.EmbedDim / c.NumHeads
	if headDim%2 != 0 {
		return errors.Wrapf(ErrInvalidConfig, "head dimension %d must be even for rotary embeddings", headDim)
	}
	minVocab := NewVocabulary(c.Schema).Size()
	if c.VocabSize != 0 && c.VocabSize < minVocab {
		return errors.Wrapf(ErrInvalidConfig, "vocabulary size %d is smaller than the %d tokens the schema requires",
			c.VocabSize, minVocab)
	}
	if c.MaxContext <= c.Schema.NumCategories()+1 {
		return errors.Wrapf(ErrInvalidConfig, "max context %d leaves no room after the %d-token conditioning prefix",
			c.MaxContext, c.Schema.NumCategories())
	}
	return nil
}

// PrefixLen returns the fixed conditioning-prefix width.
func (c *Config) PrefixLen() int {
	return c.Schema.NumCategories()
}

// WithVocabSize overrides the derived vocabulary size.
func WithVocabSize(n int) ConfigOption {
	return func(c *Config) { c.VocabSize = n }
}

// WithEmbedDim sets the embedding width.
func WithEmbedDim(n int) ConfigOption {
	return func(c *Config) { c.EmbedDim = n }
}

// WithNumLayers sets the number of transformer blocks.
func WithNumLayers(n int) ConfigOption {
	return func(c *Config) { c.NumLayers = n }
}

// WithNumHeads sets the number of attention heads.
func WithNumHeads(n int) ConfigOption {
	return func(c *Config) { c.NumHeads = n }
}

// WithMaxContext sets the maximum context length (prefix + sequence).
func WithMaxContext(n int) ConfigOption {
	return func(c *Config) { c.MaxContext = n }
}

// WithFFMult sets the feed-forward width multiplier.
func WithFFMult(n int) ConfigOption {
	return func(c *Config) { c.FFMult = n }
}

// WithRoPEBase sets the rotary embedding frequency base.
func WithRoPEBase(base float64) ConfigOption {
	return func(c *Config) { c.RoPEBase = base }
}
