package model

import (
	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

// MLP is the position-wise feed-forward sublayer: expand to the inner width,
// apply GELU, contract back to hidden.
type MLP struct {
	cFC   Linear
	cProj Linear
}

func loadMLP(st store.Store, inner int, cfg Config) (MLP, error) {
	cFC, err := loadLinear(cfg.HiddenSize, inner, true, st.Scope("c_fc"))
	if err != nil {
		return MLP{}, err
	}
	cProj, err := loadLinear(inner, cfg.HiddenSize, true, st.Scope("c_proj"))
	if err != nil {
		return MLP{}, err
	}
	return MLP{cFC: cFC, cProj: cProj}, nil
}

// Forward maps (batch, sequence, hidden) to the same shape.
func (m MLP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	h, err := m.cFC.Forward(x)
	if err != nil {
		return nil, err
	}
	tensor.Gelu(h.Data)
	return m.cProj.Forward(h)
}
