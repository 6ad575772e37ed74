package model

import (
	"errors"
	"testing"

	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

// attnStore builds the c_attn/c_proj parameters for one attention layer.
func attnStore(cfg Config, seed int64) *store.MapStore {
	st := store.NewMapStore()
	hidden := cfg.HiddenSize
	packed := hidden + 2*cfg.KVDim()
	w := tensor.New(packed, hidden)
	w.FillRand(seed)
	b := tensor.New(packed)
	b.FillRand(seed + 1)
	o := tensor.New(hidden, hidden)
	o.FillRand(seed + 2)
	ob := tensor.New(hidden)
	ob.FillRand(seed + 3)
	st.Set("c_attn.weight", w)
	st.Set("c_attn.bias", b)
	st.Set("c_proj.weight", o)
	st.Set("c_proj.bias", ob)
	return st
}

func TestAttentionPackedWidth(t *testing.T) {
	t.Parallel()
	cfg := Config{VocabSize: 10, MaxPositions: 8, NumLayers: 1, HiddenSize: 8, LayerNormEps: 1e-5, NumHeads: 4, MultiQuery: true}

	// Multi-query: the key and value segments are one head wide each, so the
	// packed projection is hidden + 2*headDim.
	a, err := loadAttention(attnStore(cfg, 1), cfg)
	if err != nil {
		t.Fatalf("loadAttention: %v", err)
	}
	if got, want := a.cAttn.weight.Dim(0), cfg.HiddenSize+2*cfg.HeadDim(); got != want {
		t.Fatalf("packed width: got %d, want %d", got, want)
	}

	// A full-width packed projection must be rejected under multi-query.
	full := cfg
	full.MultiQuery = false
	_, err = loadAttention(attnStore(full, 1), cfg)
	if !errors.Is(err, store.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}

	a, err = loadAttention(attnStore(full, 1), full)
	if err != nil {
		t.Fatalf("loadAttention standard: %v", err)
	}
	if got, want := a.cAttn.weight.Dim(0), 3*cfg.HiddenSize; got != want {
		t.Fatalf("standard packed width: got %d, want %d", got, want)
	}
}

func TestAttentionCausality(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	a, err := loadAttention(attnStore(cfg, 7), cfg)
	if err != nil {
		t.Fatalf("loadAttention: %v", err)
	}

	const seqLen = 5
	x := tensor.New(1, seqLen, cfg.HiddenSize)
	x.FillRand(11)
	base, err := a.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	// Perturb the last two positions; earlier outputs must be bit-identical.
	perturbed := x.Clone()
	for s := 3; s < seqLen; s++ {
		vec := perturbed.Vec(0, s)
		for i := range vec {
			vec[i] += 1.5
		}
	}
	got, err := a.Forward(perturbed)
	if err != nil {
		t.Fatalf("Forward perturbed: %v", err)
	}
	for s := 0; s < 3; s++ {
		compareSlices(t, got.Vec(0, s), base.Vec(0, s), 0)
	}
}

func TestAttentionMultiQueryMatchesReplicatedHeads(t *testing.T) {
	t.Parallel()
	// A multi-query layer must compute the same function as a standard layer
	// whose key/value weights are copied into every head.
	mqCfg := Config{VocabSize: 10, MaxPositions: 8, NumLayers: 1, HiddenSize: 4, LayerNormEps: 1e-5, NumHeads: 2, MultiQuery: true}
	stdCfg := mqCfg
	stdCfg.MultiQuery = false

	hidden := mqCfg.HiddenSize
	headDim := mqCfg.HeadDim()

	mqPacked := tensor.New(hidden+2*headDim, hidden)
	mqPacked.FillRand(21)
	mqBias := tensor.New(hidden + 2*headDim)
	mqBias.FillRand(22)
	proj := tensor.New(hidden, hidden)
	proj.FillRand(23)
	projBias := tensor.New(hidden)
	projBias.FillRand(24)

	stdPacked := tensor.New(3*hidden, hidden)
	stdBias := tensor.New(3 * hidden)
	// Query rows are shared verbatim.
	copy(stdPacked.Data[:hidden*hidden], mqPacked.Data[:hidden*hidden])
	copy(stdBias.Data[:hidden], mqBias.Data[:hidden])
	// The single key head and value head fan out to both heads.
	for h := 0; h < stdCfg.NumHeads; h++ {
		for r := 0; r < headDim; r++ {
			kSrc := (hidden + r) * hidden
			kDst := (hidden + h*headDim + r) * hidden
			copy(stdPacked.Data[kDst:kDst+hidden], mqPacked.Data[kSrc:kSrc+hidden])
			stdBias.Data[hidden+h*headDim+r] = mqBias.Data[hidden+r]

			vSrc := (hidden + headDim + r) * hidden
			vDst := (2*hidden + h*headDim + r) * hidden
			copy(stdPacked.Data[vDst:vDst+hidden], mqPacked.Data[vSrc:vSrc+hidden])
			stdBias.Data[2*hidden+h*headDim+r] = mqBias.Data[hidden+headDim+r]
		}
	}

	mqStore := store.NewMapStore()
	mqStore.Set("c_attn.weight", mqPacked)
	mqStore.Set("c_attn.bias", mqBias)
	mqStore.Set("c_proj.weight", proj)
	mqStore.Set("c_proj.bias", projBias)

	stdStore := store.NewMapStore()
	stdStore.Set("c_attn.weight", stdPacked)
	stdStore.Set("c_attn.bias", stdBias)
	stdStore.Set("c_proj.weight", proj)
	stdStore.Set("c_proj.bias", projBias)

	mq, err := loadAttention(mqStore, mqCfg)
	if err != nil {
		t.Fatalf("load multi-query: %v", err)
	}
	std, err := loadAttention(stdStore, stdCfg)
	if err != nil {
		t.Fatalf("load standard: %v", err)
	}

	x := tensor.New(2, 3, hidden)
	x.FillRand(31)
	gotMQ, err := mq.Forward(x)
	if err != nil {
		t.Fatalf("multi-query Forward: %v", err)
	}
	gotStd, err := std.Forward(x)
	if err != nil {
		t.Fatalf("standard Forward: %v", err)
	}
	compareSlices(t, gotMQ.Data, gotStd.Data, 1e-6)
}

func TestAttentionSingleHeadReference(t *testing.T) {
	t.Parallel()
	cfg := Config{VocabSize: 10, MaxPositions: 8, NumLayers: 1, HiddenSize: 2, LayerNormEps: 1e-5, NumHeads: 1}

	// c_attn stacks three identity maps so q = k = v = x; c_proj is the
	// identity as well.
	packed := tensor.New(6, 2)
	for i := 0; i < 3; i++ {
		packed.Data[(2*i)*2+0] = 1
		packed.Data[(2*i+1)*2+1] = 1
	}
	proj := tensor.New(2, 2)
	proj.Data[0] = 1
	proj.Data[3] = 1

	st := store.NewMapStore()
	st.Set("c_attn.weight", packed)
	st.Set("c_attn.bias", tensor.New(6))
	st.Set("c_proj.weight", proj)
	st.Set("c_proj.bias", tensor.New(2))

	a, err := loadAttention(st, cfg)
	if err != nil {
		t.Fatalf("loadAttention: %v", err)
	}

	x, _ := tensor.FromData([]float32{1, 0, 0, 1}, 1, 2, 2)
	got, err := a.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	// Position 0 sees only itself: output is v0 = (1, 0). Position 1 mixes
	// v0 and v1 with weights softmax(0, 1/sqrt(2)).
	want := []float32{1, 0, 0.330238, 0.669762}
	compareSlices(t, got.Data, want, 1e-5)
}
