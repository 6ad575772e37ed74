package model

import (
	"fmt"
	"math"
	"testing"

	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

func testConfig() Config {
	return Config{
		VocabSize:    10,
		MaxPositions: 8,
		NumLayers:    1,
		HiddenSize:   8,
		LayerNormEps: 1e-5,
		NumHeads:     2,
	}
}

// randomStore populates a MapStore with every parameter the model expects,
// filled with deterministic pseudo-random values.
func randomStore(cfg Config, seed int64) *store.MapStore {
	st := store.NewMapStore()
	next := func(shape ...int) *tensor.Tensor {
		t := tensor.New(shape...)
		t.FillRand(seed)
		seed++
		return t
	}

	hidden := cfg.HiddenSize
	kvDim := cfg.KVDim()
	inner := cfg.Inner()

	st.Set("wte.weight", next(cfg.VocabSize, hidden))
	st.Set("wpe.weight", next(cfg.MaxPositions, hidden))
	for i := 0; i < cfg.NumLayers; i++ {
		p := fmt.Sprintf("h.%d.", i)
		st.Set(p+"ln_1.weight", next(hidden))
		st.Set(p+"ln_1.bias", next(hidden))
		st.Set(p+"attn.c_attn.weight", next(hidden+2*kvDim, hidden))
		st.Set(p+"attn.c_attn.bias", next(hidden+2*kvDim))
		st.Set(p+"attn.c_proj.weight", next(hidden, hidden))
		st.Set(p+"attn.c_proj.bias", next(hidden))
		st.Set(p+"ln_2.weight", next(hidden))
		st.Set(p+"ln_2.bias", next(hidden))
		st.Set(p+"mlp.c_fc.weight", next(inner, hidden))
		st.Set(p+"mlp.c_fc.bias", next(inner))
		st.Set(p+"mlp.c_proj.weight", next(hidden, inner))
		st.Set(p+"mlp.c_proj.bias", next(hidden))
	}
	st.Set("ln_f.weight", next(hidden))
	st.Set("ln_f.bias", next(hidden))
	st.Set("lm_head.weight", next(cfg.VocabSize, hidden))
	return st
}

func ones(n int) *tensor.Tensor {
	t := tensor.New(n)
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}

// identityStore builds parameters under which every block is the identity:
// unit norms and zero attention/feed-forward weights, so only the residual
// paths carry signal.
func identityStore(cfg Config, seed int64) *store.MapStore {
	st := randomStore(cfg, seed)
	hidden := cfg.HiddenSize
	kvDim := cfg.KVDim()
	inner := cfg.Inner()
	for i := 0; i < cfg.NumLayers; i++ {
		p := fmt.Sprintf("h.%d.", i)
		st.Set(p+"ln_1.weight", ones(hidden))
		st.Set(p+"ln_1.bias", tensor.New(hidden))
		st.Set(p+"attn.c_attn.weight", tensor.New(hidden+2*kvDim, hidden))
		st.Set(p+"attn.c_attn.bias", tensor.New(hidden+2*kvDim))
		st.Set(p+"attn.c_proj.weight", tensor.New(hidden, hidden))
		st.Set(p+"attn.c_proj.bias", tensor.New(hidden))
		st.Set(p+"ln_2.weight", ones(hidden))
		st.Set(p+"ln_2.bias", tensor.New(hidden))
		st.Set(p+"mlp.c_fc.weight", tensor.New(inner, hidden))
		st.Set(p+"mlp.c_fc.bias", tensor.New(inner))
		st.Set(p+"mlp.c_proj.weight", tensor.New(hidden, inner))
		st.Set(p+"mlp.c_proj.bias", tensor.New(hidden))
	}
	return st
}

func compareSlices(t *testing.T, got, want []float32, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("mismatch at %d: got %f, want %f", i, got[i], want[i])
		}
	}
}
