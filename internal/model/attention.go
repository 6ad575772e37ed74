package model

import (
	"math"

	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

// Attention is causal self-attention over a full sequence. Query, key and
// value are produced by one packed projection (c_attn) whose output width is
// hidden + 2*kvDim; under multi-query attention kvDim collapses to a single
// head shared by every query head. There is no state across calls: keys and
// values are recomputed from the whole input every time.
type Attention struct {
	cAttn Linear
	cProj Linear

	numHeads int
	kvHeads  int
	headDim  int
	scale    float32
}

func loadAttention(st store.Store, cfg Config) (*Attention, error) {
	hidden := cfg.HiddenSize
	kvDim := cfg.KVDim()
	cAttn, err := loadLinear(hidden, hidden+2*kvDim, true, st.Scope("c_attn"))
	if err != nil {
		return nil, err
	}
	cProj, err := loadLinear(hidden, hidden, true, st.Scope("c_proj"))
	if err != nil {
		return nil, err
	}
	return &Attention{
		cAttn:    cAttn,
		cProj:    cProj,
		numHeads: cfg.NumHeads,
		kvHeads:  cfg.KVHeads(),
		headDim:  cfg.HeadDim(),
		scale:    float32(1.0 / math.Sqrt(float64(cfg.HeadDim()))),
	}, nil
}

// Forward maps (batch, sequence, hidden) to the same shape.
func (a *Attention) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	batch, seqLen, hidden := x.Dim(0), x.Dim(1), x.Dim(2)
	kvDim := a.kvHeads * a.headDim

	qkv, err := a.cAttn.Forward(x)
	if err != nil {
		return nil, err
	}
	q, err := qkv.Narrow(2, 0, hidden)
	if err != nil {
		return nil, err
	}
	k, err := qkv.Narrow(2, hidden, kvDim)
	if err != nil {
		return nil, err
	}
	v, err := qkv.Narrow(2, hidden+kvDim, kvDim)
	if err != nil {
		return nil, err
	}

	// Per-head working set, reused across batches and heads.
	qh := tensor.New(seqLen, a.headDim)
	kh := tensor.New(seqLen, a.headDim)
	vh := tensor.New(seqLen, a.headDim)
	scores := tensor.New(seqLen, seqLen)
	ctx := tensor.New(seqLen, a.headDim)

	// Each group of numHeads/kvHeads query heads reads the same key/value
	// head, which covers both standard (group size 1) and multi-query
	// (single group) attention.
	group := a.numHeads / a.kvHeads

	merged := tensor.New(batch, seqLen, hidden)
	for b := 0; b < batch; b++ {
		for h := 0; h < a.numHeads; h++ {
			kvh := h / group
			qOff := h * a.headDim
			kvOff := kvh * a.headDim
			for i := 0; i < seqLen; i++ {
				copy(qh.Vec(i), q.Vec(b, i)[qOff:qOff+a.headDim])
				copy(kh.Vec(i), k.Vec(b, i)[kvOff:kvOff+a.headDim])
				copy(vh.Vec(i), v.Vec(b, i)[kvOff:kvOff+a.headDim])
			}

			if err := tensor.MatMulT(scores, qh, kh); err != nil {
				return nil, err
			}
			for i := 0; i < seqLen; i++ {
				row := scores.Vec(i)
				for j := 0; j <= i; j++ {
					row[j] *= a.scale
				}
				// Position i attends to positions <= i only.
				for j := i + 1; j < seqLen; j++ {
					row[j] = tensor.NegInf
				}
				tensor.Softmax(row)
			}

			if err := tensor.MatMul(ctx, scores, vh); err != nil {
				return nil, err
			}
			for i := 0; i < seqLen; i++ {
				copy(merged.Vec(b, i)[qOff:qOff+a.headDim], ctx.Vec(i))
			}
		}
	}

	return a.cProj.Forward(merged)
}
