package model

import (
	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

// Block is one transformer layer in pre-norm form: each sublayer sees the
// normalized input, and its output is added back onto the value from before
// normalization.
type Block struct {
	ln1  LayerNorm
	attn *Attention
	ln2  LayerNorm
	mlp  MLP
}

func loadBlock(st store.Store, cfg Config) (*Block, error) {
	ln1, err := loadLayerNorm(cfg.HiddenSize, cfg.LayerNormEps, st.Scope("ln_1"))
	if err != nil {
		return nil, err
	}
	attn, err := loadAttention(st.Scope("attn"), cfg)
	if err != nil {
		return nil, err
	}
	ln2, err := loadLayerNorm(cfg.HiddenSize, cfg.LayerNormEps, st.Scope("ln_2"))
	if err != nil {
		return nil, err
	}
	mlp, err := loadMLP(st.Scope("mlp"), cfg.Inner(), cfg)
	if err != nil {
		return nil, err
	}
	return &Block{ln1: ln1, attn: attn, ln2: ln2, mlp: mlp}, nil
}

// Forward maps (batch, sequence, hidden) to the same shape.
func (b *Block) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	attnOut, err := b.attn.Forward(b.ln1.Forward(x))
	if err != nil {
		return nil, err
	}
	if err := tensor.AddTensor(attnOut, x); err != nil {
		return nil, err
	}

	mlpOut, err := b.mlp.Forward(b.ln2.Forward(attnOut))
	if err != nil {
		return nil, err
	}
	if err := tensor.AddTensor(mlpOut, attnOut); err != nil {
		return nil, err
	}
	return mlpOut, nil
}
