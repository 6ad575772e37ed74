// Package api exposes a loaded model over HTTP. The single inference
// endpoint runs a full-sequence forward pass and returns last-position
// logits; there is no sampling, streaming, or token cache behind it.
package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"bigcode/internal/logger"
	"bigcode/internal/model"
)

// Server serves forward-pass requests for one loaded model.
type Server struct {
	model *model.Model
	log   logger.Logger
}

func NewServer(m *model.Model, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{model: m, log: log}
}

// Register installs the API routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/logits", s.handleLogits)
	e.GET("/v1/model", s.handleModelInfo)
}

func (s *Server) handleModelInfo(c *echo.Context) error {
	cfg := s.model.Config()
	return c.JSON(http.StatusOK, ModelInfo{
		VocabSize:    cfg.VocabSize,
		MaxPositions: cfg.MaxPositions,
		NumLayers:    cfg.NumLayers,
		HiddenSize:   cfg.HiddenSize,
		NumHeads:     cfg.NumHeads,
		MultiQuery:   cfg.MultiQuery,
	})
}

func (s *Server) handleLogits(c *echo.Context) error {
	req, err := decodeJSON[LogitsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Tokens) == 0 {
		return writeBadRequest(c, "tokens is required and must not be empty")
	}
	if req.TopK < 0 {
		return writeBadRequest(c, "top_k must not be negative")
	}

	positions := req.Positions
	if positions == nil {
		positions = make([][]int, len(req.Tokens))
		for b, row := range req.Tokens {
			positions[b] = make([]int, len(row))
			for s := range row {
				positions[b][s] = s
			}
		}
	}

	id := "logits-" + uuid.NewString()
	logits, err := s.model.Forward(req.Tokens, positions)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			return writeBadRequest(c, err.Error())
		}
		s.log.Error("forward pass failed", "id", id, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	resp := LogitsResponse{
		ID:        id,
		VocabSize: s.model.Config().VocabSize,
	}
	batch := logits.Dim(0)
	if req.TopK > 0 {
		resp.Top = make([][]TokenLogit, batch)
		for b := 0; b < batch; b++ {
			resp.Top[b] = topK(logits.Vec(b), req.TopK)
		}
	} else {
		resp.Logits = make([][]float32, batch)
		for b := 0; b < batch; b++ {
			resp.Logits[b] = append([]float32(nil), logits.Vec(b)...)
		}
	}

	s.log.Debug("served logits", "id", id, "batch", batch, "seq", len(req.Tokens[0]))
	return c.JSON(http.StatusOK, resp)
}

// topK returns the k highest-scoring vocabulary entries in descending
// order, breaking ties by token id.
func topK(logits []float32, k int) []TokenLogit {
	if k > len(logits) {
		k = len(logits)
	}
	entries := make([]TokenLogit, len(logits))
	for i, v := range logits {
		entries[i] = TokenLogit{Token: i, Logit: v}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Logit > entries[j].Logit
	})
	return entries[:k]
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ErrorBody{
			Message: msg,
			Type:    errType,
		},
	})
}
