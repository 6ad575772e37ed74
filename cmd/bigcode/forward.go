package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"bigcode/internal/logger"
)

func forwardCmd() *cli.Command {
	var (
		modelPath  string
		configJSON string
		tokens     string
		positions  string
		topK       int64
	)

	return &cli.Command{
		Name:  "forward",
		Usage: "Run one forward pass and print next-token logits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Usage:       "path to a .safetensors checkpoint",
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to the checkpoint's config.json",
				Destination: &configJSON,
			},
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "comma-separated token ids, e.g. 1,2,3",
				Required:    true,
				Destination: &tokens,
			},
			&cli.StringFlag{
				Name:        "positions",
				Usage:       "comma-separated position ids (default 0..n-1)",
				Destination: &positions,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "number of top logits to print",
				Value:       10,
				Destination: &topK,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyFileConfig(cmd, loadFileConfig(), &modelPath, &configJSON, &topK)
			log := logger.FromContext(ctx)

			ids, err := parseIDs(tokens)
			if err != nil {
				return fmt.Errorf("parse --tokens: %w", err)
			}
			var pos []int
			if positions != "" {
				if pos, err = parseIDs(positions); err != nil {
					return fmt.Errorf("parse --positions: %w", err)
				}
			} else {
				pos = make([]int, len(ids))
				for i := range pos {
					pos[i] = i
				}
			}

			start := time.Now()
			m, err := loadModel(modelPath, configJSON)
			if err != nil {
				return err
			}
			cfg := m.Config()
			log.Info("model loaded",
				"layers", cfg.NumLayers,
				"hidden", cfg.HiddenSize,
				"heads", cfg.NumHeads,
				"multi_query", cfg.MultiQuery,
				"elapsed", time.Since(start))

			start = time.Now()
			logits, err := m.Forward([][]int{ids}, [][]int{pos})
			if err != nil {
				return err
			}
			log.Info("forward pass done", "seq", len(ids), "elapsed", time.Since(start))

			printTopLogits(logits.Vec(0), int(topK))
			return nil
		},
	}
}

func parseIDs(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	return ids, nil
}

func printTopLogits(logits []float32, k int) {
	type entry struct {
		token int
		logit float32
	}
	entries := make([]entry, len(logits))
	for i, v := range logits {
		entries[i] = entry{token: i, logit: v}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].logit > entries[j].logit
	})
	if k > len(entries) {
		k = len(entries)
	}
	for _, e := range entries[:k] {
		fmt.Printf("%8d  %.6f\n", e.token, e.logit)
	}
}
