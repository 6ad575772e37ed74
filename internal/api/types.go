package api

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// LogitsRequest asks for next-token logits over one or more token
// sequences. Positions default to 0..len-1 per row when omitted.
type LogitsRequest struct {
	Tokens    [][]int `json:"tokens"`
	Positions [][]int `json:"positions,omitempty"`
	// TopK limits the response to the k highest-scoring tokens per row.
	// Zero returns the full logit vector.
	TopK int `json:"top_k,omitempty"`
}

// TokenLogit is one vocabulary entry and its score.
type TokenLogit struct {
	Token int     `json:"token"`
	Logit float32 `json:"logit"`
}

// LogitsResponse carries the result of a forward pass.
type LogitsResponse struct {
	ID        string         `json:"id"`
	VocabSize int            `json:"vocab_size"`
	Logits    [][]float32    `json:"logits,omitempty"`
	Top       [][]TokenLogit `json:"top,omitempty"`
}

// ModelInfo describes the loaded model.
type ModelInfo struct {
	VocabSize    int  `json:"vocab_size"`
	MaxPositions int  `json:"max_position_embeddings"`
	NumLayers    int  `json:"n_layer"`
	HiddenSize   int  `json:"n_embd"`
	NumHeads     int  `json:"n_head"`
	MultiQuery   bool `json:"multi_query"`
}

// ErrorBody is the error envelope returned for failed requests.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func decodeJSON[T any](r io.Reader) (*T, error) {
	var v T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	return &v, nil
}
