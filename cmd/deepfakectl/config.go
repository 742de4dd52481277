package main

import (
	"fmt"
	"os"

	"deepfake/internal/conf"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
)

// loadConfig reads the optional config file and applies flag overrides. Server
// storage settings are ignored; the CLI records history only with --history.
func loadConfig(opts *options) (*conf.Bootstrap, error) {
	bc := &conf.Bootstrap{}
	if opts.configPath != "" {
		c := config.New(
			config.WithSource(
				env.NewSource("DEEPFAKE_"),
				file.NewSource(opts.configPath),
			),
		)
		defer c.Close()

		if err := c.Load(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.configPath, err)
		}
		if err := c.Scan(bc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", opts.configPath, err)
		}
	}
	if bc.LLM == nil {
		bc.LLM = &conf.LLM{}
	}
	if bc.Analysis == nil {
		bc.Analysis = &conf.Analysis{}
	}
	if bc.LLM.APIKey == "" {
		bc.LLM.APIKey = os.Getenv("DEEPFAKE_GEMINI_API_KEY")
	}
	if opts.provider != "" {
		bc.LLM.Provider = opts.provider
	}
	if opts.model != "" {
		bc.LLM.Model = opts.model
	}
	if opts.videoMode != "" {
		bc.Analysis.VideoMode = opts.videoMode
	}
	bc.Analysis.Cache = nil
	return bc, nil
}

func newLogger(level string) log.Logger {
	logger := log.With(log.NewStdLogger(os.Stderr),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
	)
	return log.NewFilter(logger, log.FilterLevel(log.ParseLevel(level)))
}
