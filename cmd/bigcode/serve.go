package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"bigcode/internal/api"
	"bigcode/internal/logger"
	"bigcode/internal/version"
)

func serveCmd() *cli.Command {
	var (
		modelPath   string
		configJSON  string
		addr        string
		logLevel    string
		logFormat   string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve next-token logits over HTTP",
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
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "debug, info, warn or error",
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "text or json",
				Value:       "text",
				Destination: &logFormat,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "request read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fileCfg := loadFileConfig()
			applyFileConfig(cmd, fileCfg, &modelPath, &configJSON, nil)
			if fileCfg.Address != "" && !cmd.IsSet("addr") {
				addr = fileCfg.Address
			}
			if fileCfg.LogLevel != "" && !cmd.IsSet("log-level") {
				logLevel = fileCfg.LogLevel
			}
			if fileCfg.LogFormat != "" && !cmd.IsSet("log-format") {
				logFormat = fileCfg.LogFormat
			}

			var log logger.Logger
			if logFormat == "json" {
				log = logger.JSON(os.Stderr, logger.ParseLevel(logLevel))
			} else {
				log = logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: logger.ParseLevel(logLevel),
				}))
			}

			log.Info("bigcode starting", "version", version.String())
			m, err := loadModel(modelPath, configJSON)
			if err != nil {
				return err
			}
			cfg := m.Config()
			log.Info("model loaded", "layers", cfg.NumLayers, "hidden", cfg.HiddenSize, "vocab", cfg.VocabSize)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(m, log).Register(e)

			log.Info("listening", "addr", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
