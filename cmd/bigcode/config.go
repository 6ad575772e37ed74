package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional configuration file
// (~/.config/bigcode/config.yaml). Values act as defaults and never override
// flags the user set explicitly.
type fileConfig struct {
	Model     string `yaml:"model"`
	Config    string `yaml:"config"`
	TopK      *int64 `yaml:"top_k"`
	Address   string `yaml:"address"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "bigcode", "config.yaml")
}

func loadFileConfig() fileConfig {
	var cfg fileConfig
	path := configPath()
	if path == "" {
		return cfg
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	// A malformed config file is ignored rather than fatal; flags still work.
	_ = yaml.Unmarshal(raw, &cfg)
	return cfg
}

func applyFileConfig(c *cli.Command, cfg fileConfig, modelPath, configJSON *string, topK *int64) {
	if cfg.Model != "" && !c.IsSet("model") {
		*modelPath = cfg.Model
	}
	if cfg.Config != "" && !c.IsSet("config") {
		*configJSON = cfg.Config
	}
	if topK != nil && cfg.TopK != nil && !c.IsSet("top-k") {
		*topK = *cfg.TopK
	}
}
