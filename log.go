package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/utils"
)

// setupLog points the default logger at stderr, and also at a log file when
// one is configured. The returned closer releases the file.
func setupLog() (func() error, error) {
	e, err := env.ParseAs[config.Env]()
	if err != nil {
		return nil, err
	}
	envConfig = e

	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	if e.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if e.LogFile == "" {
		return func() error { return nil }, nil
	}
	return attachLogFile(e.LogFile)
}

func attachLogFile(path string) (func() error, error) {
	path = utils.ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	level := log.GetLevel()
	logger := log.NewWithOptions(io.MultiWriter(os.Stderr, f), log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	log.SetDefault(logger)
	return f.Close, nil
}
