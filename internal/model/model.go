// Package model implements the GPT-BigCode decoder-only transformer: weight
// loading from a parameter store and a full-sequence forward pass producing
// next-token logits for the last position.
//
// A loaded Model owns its entire parameter graph and never mutates it, so
// concurrent forward passes over one instance are safe.
package model

import (
	"fmt"

	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

// Model is a loaded GPT-BigCode network.
type Model struct {
	cfg Config

	wte    Embedding
	wpe    Embedding
	blocks []*Block
	lnF    LayerNorm
	lmHead Linear
}

// Load materializes a model from st under the conventional GPT-BigCode
// tensor names (wte, wpe, h.<i>.*, ln_f, lm_head). Any missing or misshapen
// parameter aborts the load; there is no partial model.
func Load(st store.Store, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	wte, err := loadEmbedding(cfg.VocabSize, cfg.HiddenSize, st.Scope("wte"))
	if err != nil {
		return nil, err
	}
	wpe, err := loadEmbedding(cfg.MaxPositions, cfg.HiddenSize, st.Scope("wpe"))
	if err != nil {
		return nil, err
	}

	blocks := make([]*Block, cfg.NumLayers)
	for i := range blocks {
		blocks[i], err = loadBlock(st.Scope(fmt.Sprintf("h.%d", i)), cfg)
		if err != nil {
			return nil, err
		}
	}

	lnF, err := loadLayerNorm(cfg.HiddenSize, cfg.LayerNormEps, st.Scope("ln_f"))
	if err != nil {
		return nil, err
	}
	lmHead, err := loadLinear(cfg.HiddenSize, cfg.VocabSize, false, st.Scope("lm_head"))
	if err != nil {
		return nil, err
	}

	return &Model{
		cfg:    cfg,
		wte:    wte,
		wpe:    wpe,
		blocks: blocks,
		lnF:    lnF,
		lmHead: lmHead,
	}, nil
}

// Config returns the hyperparameters the model was loaded with.
func (m *Model) Config() Config { return m.cfg }

// Forward runs a full-sequence forward pass over a (batch, sequence) grid of
// token ids and their positions, and returns next-token logits for the final
// sequence position only, shape (batch, vocab). Keys and values are
// recomputed from the whole sequence on every call; callers generating token
// by token re-run the growing sequence each step.
func (m *Model) Forward(tokenIDs, positionIDs [][]int) (*tensor.Tensor, error) {
	seqLen, err := m.checkInputs(tokenIDs, positionIDs)
	if err != nil {
		return nil, err
	}

	hidden := m.wte.Forward(tokenIDs)
	if err := tensor.AddTensor(hidden, m.wpe.Forward(positionIDs)); err != nil {
		return nil, err
	}

	for _, block := range m.blocks {
		hidden, err = block.Forward(hidden)
		if err != nil {
			return nil, err
		}
	}
	hidden = m.lnF.Forward(hidden)

	last, err := hidden.Narrow(1, seqLen-1, 1)
	if err != nil {
		return nil, err
	}
	last, err = last.Reshape(len(tokenIDs), m.cfg.HiddenSize)
	if err != nil {
		return nil, err
	}
	return m.lmHead.Forward(last)
}

func (m *Model) checkInputs(tokenIDs, positionIDs [][]int) (seqLen int, err error) {
	if len(tokenIDs) == 0 {
		return 0, fmt.Errorf("%w: empty batch", ErrInvalidInput)
	}
	if len(positionIDs) != len(tokenIDs) {
		return 0, fmt.Errorf("%w: %d token rows but %d position rows", ErrInvalidInput, len(tokenIDs), len(positionIDs))
	}
	seqLen = len(tokenIDs[0])
	if seqLen == 0 {
		return 0, fmt.Errorf("%w: empty sequence", ErrInvalidInput)
	}
	for b := range tokenIDs {
		if len(tokenIDs[b]) != seqLen || len(positionIDs[b]) != seqLen {
			return 0, fmt.Errorf("%w: ragged batch at row %d", ErrInvalidInput, b)
		}
		for s, id := range tokenIDs[b] {
			if id < 0 || id >= m.cfg.VocabSize {
				return 0, fmt.Errorf("%w: token id %d at (%d, %d) outside vocab of %d", ErrInvalidInput, id, b, s, m.cfg.VocabSize)
			}
		}
		for s, pos := range positionIDs[b] {
			if pos < 0 || pos >= m.cfg.MaxPositions {
				return 0, fmt.Errorf("%w: position %d at (%d, %d) outside table of %d", ErrInvalidInput, pos, b, s, m.cfg.MaxPositions)
			}
		}
	}
	return seqLen, nil
}
