package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Config holds the hyperparameters of a GPT-BigCode network. It is fixed at
// load time and never mutated afterwards.
type Config struct {
	VocabSize    int
	MaxPositions int
	NumLayers    int
	HiddenSize   int
	LayerNormEps float64
	// InnerSize is the feed-forward expansion width. Zero means the
	// conventional 4*HiddenSize.
	InnerSize int
	NumHeads  int
	// MultiQuery selects multi-query attention: all query heads share a
	// single key/value head.
	MultiQuery bool
}

// Validate checks the structural invariants the rest of the model relies on.
func (c Config) Validate() error {
	if c.VocabSize <= 0 {
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrInvalidConfig, c.VocabSize)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("%w: max_position_embeddings must be positive, got %d", ErrInvalidConfig, c.MaxPositions)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("%w: n_layer must be positive, got %d", ErrInvalidConfig, c.NumLayers)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("%w: hidden_size must be positive, got %d", ErrInvalidConfig, c.HiddenSize)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("%w: n_head must be positive, got %d", ErrInvalidConfig, c.NumHeads)
	}
	if c.HiddenSize%c.NumHeads != 0 {
		return fmt.Errorf("%w: hidden_size %d not divisible by n_head %d", ErrInvalidConfig, c.HiddenSize, c.NumHeads)
	}
	if c.LayerNormEps <= 0 {
		return fmt.Errorf("%w: layer_norm_epsilon must be positive, got %g", ErrInvalidConfig, c.LayerNormEps)
	}
	if c.InnerSize < 0 {
		return fmt.Errorf("%w: n_inner must not be negative, got %d", ErrInvalidConfig, c.InnerSize)
	}
	return nil
}

// HeadDim returns the per-head vector width.
func (c Config) HeadDim() int { return c.HiddenSize / c.NumHeads }

// KVHeads returns the number of key/value heads: one under multi-query
// attention, otherwise equal to the number of query heads.
func (c Config) KVHeads() int {
	if c.MultiQuery {
		return 1
	}
	return c.NumHeads
}

// KVDim returns the total key (or value) width of the packed projection.
func (c Config) KVDim() int { return c.KVHeads() * c.HeadDim() }

// Inner returns the feed-forward expansion width, applying the 4*hidden
// default.
func (c Config) Inner() int {
	if c.InnerSize > 0 {
		return c.InnerSize
	}
	return 4 * c.HiddenSize
}

// hfConfig mirrors the fields of a Hugging Face config.json for GPT-BigCode
// checkpoints. Older exports use the GPT-2 style short names, newer ones the
// long names; both are accepted.
type hfConfig struct {
	ModelType string `json:"model_type"`

	VocabSize             int `json:"vocab_size"`
	NPositions            int `json:"n_positions"`
	MaxPositionEmbeddings int `json:"max_position_embeddings"`
	NLayer                int `json:"n_layer"`
	NumHiddenLayers       int `json:"num_hidden_layers"`
	NEmbd                 int `json:"n_embd"`
	HiddenSize            int `json:"hidden_size"`
	NHead                 int `json:"n_head"`
	NumAttentionHeads     int `json:"num_attention_heads"`

	LayerNormEpsilon float64 `json:"layer_norm_epsilon"`
	NInner           *int    `json:"n_inner"`
	MultiQuery       bool    `json:"multi_query"`
}

// ParseConfigJSON builds a Config from the raw bytes of a checkpoint's
// config.json. The result is validated before being returned.
func ParseConfigJSON(raw []byte) (Config, error) {
	var hf hfConfig
	if err := json.Unmarshal(raw, &hf); err != nil {
		return Config{}, fmt.Errorf("parse config.json: %w", err)
	}

	cfg := Config{
		VocabSize:    hf.VocabSize,
		MaxPositions: firstPositive(hf.NPositions, hf.MaxPositionEmbeddings),
		NumLayers:    firstPositive(hf.NLayer, hf.NumHiddenLayers),
		HiddenSize:   firstPositive(hf.NEmbd, hf.HiddenSize),
		LayerNormEps: hf.LayerNormEpsilon,
		NumHeads:     firstPositive(hf.NHead, hf.NumAttentionHeads),
		MultiQuery:   hf.MultiQuery,
	}
	if hf.NInner != nil {
		cfg.InnerSize = *hf.NInner
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-5
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
