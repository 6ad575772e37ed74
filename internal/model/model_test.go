package model

import (
	"errors"
	"math"
	"testing"

	"bigcode/internal/store"
	"bigcode/internal/tensor"
)

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.NumHeads = 3
	_, err := Load(store.NewMapStore(), cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMissingParameterAborts(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	st := randomStore(cfg, 1)
	st.Delete("h.0.attn.c_proj.weight")
	_, err := Load(st, cfg)
	if !errors.Is(err, store.ErrMissingParameter) {
		t.Fatalf("expected ErrMissingParameter, got %v", err)
	}
}

func TestForwardShape(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	m, err := Load(randomStore(cfg, 1), cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, batch := range []int{1, 2} {
		for _, seqLen := range []int{1, 3, 5} {
			tokens := make([][]int, batch)
			positions := make([][]int, batch)
			for b := range tokens {
				tokens[b] = make([]int, seqLen)
				positions[b] = make([]int, seqLen)
				for s := 0; s < seqLen; s++ {
					tokens[b][s] = (b + s) % cfg.VocabSize
					positions[b][s] = s
				}
			}
			logits, err := m.Forward(tokens, positions)
			if err != nil {
				t.Fatalf("Forward batch=%d seq=%d: %v", batch, seqLen, err)
			}
			if logits.Rank() != 2 || logits.Dim(0) != batch || logits.Dim(1) != cfg.VocabSize {
				t.Fatalf("batch=%d seq=%d: logits shape %v, want (%d, %d)", batch, seqLen, logits.Shape, batch, cfg.VocabSize)
			}
		}
	}
}

func TestForwardEndToEnd(t *testing.T) {
	t.Parallel()
	cfg := Config{
		VocabSize:    10,
		MaxPositions: 4,
		NumLayers:    1,
		HiddenSize:   8,
		LayerNormEps: 1e-5,
		NumHeads:     2,
	}
	m, err := Load(randomStore(cfg, 42), cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	logits, err := m.Forward([][]int{{1, 2, 3}}, [][]int{{0, 1, 2}})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if logits.Dim(0) != 1 || logits.Dim(1) != 10 {
		t.Fatalf("logits shape: got %v, want (1, 10)", logits.Shape)
	}
	for i, v := range logits.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite logit %f at %d", v, i)
		}
	}
}

func TestForwardEndToEndMultiQuery(t *testing.T) {
	t.Parallel()
	cfg := Config{
		VocabSize:    10,
		MaxPositions: 8,
		NumLayers:    2,
		HiddenSize:   8,
		LayerNormEps: 1e-5,
		NumHeads:     4,
		MultiQuery:   true,
	}
	m, err := Load(randomStore(cfg, 7), cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// The packed projection carries one shared kv head of width headDim.
	attn := m.blocks[0].attn
	if got, want := attn.cAttn.weight.Dim(0), cfg.HiddenSize+2*cfg.HeadDim(); got != want {
		t.Fatalf("packed width: got %d, want %d", got, want)
	}

	logits, err := m.Forward([][]int{{4, 5}}, [][]int{{0, 1}})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i, v := range logits.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite logit %f at %d", v, i)
		}
	}
}

func TestBlockResidualIdentity(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	st := identityStore(cfg, 3)
	block, err := loadBlock(store.Scoped(st, "h.0"), cfg)
	if err != nil {
		t.Fatalf("loadBlock: %v", err)
	}

	x := tensor.New(1, 4, cfg.HiddenSize)
	x.FillRand(13)
	got, err := block.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	compareSlices(t, got.Data, x.Data, 0)
}

func TestForwardInvalidInput(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	m, err := Load(randomStore(cfg, 1), cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cases := []struct {
		name      string
		tokens    [][]int
		positions [][]int
	}{
		{"empty batch", [][]int{}, [][]int{}},
		{"empty sequence", [][]int{{}}, [][]int{{}}},
		{"ragged tokens", [][]int{{1, 2}, {1}}, [][]int{{0, 1}, {0, 1}}},
		{"position rows mismatch", [][]int{{1, 2}}, [][]int{{0, 1}, {0, 1}}},
		{"ragged positions", [][]int{{1, 2}}, [][]int{{0}}},
		{"token out of vocab", [][]int{{1, 10}}, [][]int{{0, 1}}},
		{"negative token", [][]int{{-1, 2}}, [][]int{{0, 1}}},
		{"position out of range", [][]int{{1, 2}}, [][]int{{0, 8}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Forward(tc.tokens, tc.positions)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestForwardConcurrentCallers(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	m, err := Load(randomStore(cfg, 5), cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tokens := [][]int{{1, 2, 3}}
	positions := [][]int{{0, 1, 2}}
	want, err := m.Forward(tokens, positions)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	const workers = 4
	results := make(chan *tensor.Tensor, workers)
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		go func() {
			logits, err := m.Forward(tokens, positions)
			if err != nil {
				errs <- err
				return
			}
			results <- logits
		}()
	}
	for w := 0; w < workers; w++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent Forward: %v", err)
		case logits := <-results:
			compareSlices(t, logits.Data, want.Data, 0)
		}
	}
}
