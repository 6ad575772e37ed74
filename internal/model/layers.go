package model

import (
	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

// Linear is an affine projection with weight shape (out, in) and an optional
// bias of shape (out).
type Linear struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
}

// loadLinear fetches "weight" (and "bias" when hasBias is set) from st.
func loadLinear(in, out int, hasBias bool, st store.Store) (Linear, error) {
	weight, err := st.Get([]int{out, in}, "weight")
	if err != nil {
		return Linear{}, err
	}
	var bias *tensor.Tensor
	if hasBias {
		bias, err = st.Get([]int{out}, "bias")
		if err != nil {
			return Linear{}, err
		}
	}
	return Linear{weight: weight, bias: bias}, nil
}

// Forward applies the projection along the last axis of x: every innermost
// vector of length in maps to one of length out. Leading axes are preserved.
func (l Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	in := l.weight.Dim(1)
	out := l.weight.Dim(0)

	rows := x.Numel() / in
	flat, err := x.Reshape(rows, in)
	if err != nil {
		return nil, err
	}
	dst := tensor.New(rows, out)
	if err := tensor.MatMulT(dst, flat, l.weight); err != nil {
		return nil, err
	}
	if l.bias != nil {
		for r := 0; r < rows; r++ {
			tensor.Add(dst.Vec(r), l.bias.Data)
		}
	}

	outShape := append([]int(nil), x.Shape...)
	outShape[len(outShape)-1] = out
	return dst.Reshape(outShape...)
}

// Embedding is an index-to-row lookup table of shape (cardinality, width).
type Embedding struct {
	table *tensor.Tensor
}

func loadEmbedding(cardinality, width int, st store.Store) (Embedding, error) {
	table, err := st.Get([]int{cardinality, width}, "weight")
	if err != nil {
		return Embedding{}, err
	}
	return Embedding{table: table}, nil
}

// Forward gathers the table rows for a (batch, sequence) grid of ids. Ids
// must already be validated against the table's cardinality.
func (e Embedding) Forward(ids [][]int) *tensor.Tensor {
	width := e.table.Dim(1)
	seqLen := len(ids[0])
	out := tensor.New(len(ids), seqLen, width)
	for b, row := range ids {
		for s, id := range row {
			copy(out.Vec(b, s), e.table.Vec(id))
		}
	}
	return out
}

// LayerNorm normalizes the innermost axis and applies a learned affine
// transform.
type LayerNorm struct {
	gamma *tensor.Tensor
	beta  *tensor.Tensor
	eps   float32
}

// loadLayerNorm fetches the scale and shift parameters. Checkpoints store
// them either as {weight, bias} or, in older exports, as {gamma, beta}; the
// second convention is tried only when the first fails, and a double failure
// surfaces the original error so messages name the configured parameter.
func loadLayerNorm(width int, eps float64, st store.Store) (LayerNorm, error) {
	gamma, gerr := st.Get([]int{width}, "weight")
	beta, berr := st.Get([]int{width}, "bias")
	if gerr != nil || berr != nil {
		primary := gerr
		if primary == nil {
			primary = berr
		}
		g2, err2 := st.Get([]int{width}, "gamma")
		b2, err3 := st.Get([]int{width}, "beta")
		if err2 != nil || err3 != nil {
			return LayerNorm{}, primary
		}
		gamma, beta = g2, b2
	}
	return LayerNorm{gamma: gamma, beta: beta, eps: float32(eps)}, nil
}

// Forward normalizes every innermost vector of x into a fresh tensor.
func (n LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	width := x.Dim(x.Rank() - 1)
	rows := x.Numel() / width
	out := tensor.New(x.Shape...)
	for r := 0; r < rows; r++ {
		src := x.Data[r*width : (r+1)*width]
		dst := out.Data[r*width : (r+1)*width]
		tensor.LayerNorm(dst, src, n.gamma.Data, n.beta.Data, n.eps)
	}
	return out
}
