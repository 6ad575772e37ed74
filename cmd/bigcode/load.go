package main

import (
	"fmt"
	"os"

	"bigcode/internal/model"
	"bigcode/internal/store"
)

// loadModel opens a safetensors checkpoint plus its config.json and
// materializes the full model.
func loadModel(modelPath, configPath string) (*model.Model, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("--model is required")
	}
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := model.ParseConfigJSON(raw)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenSafetensors(modelPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	return model.Load(st, cfg)
}
