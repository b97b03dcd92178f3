package main

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/history"
	"github.com/dgnsrekt/narrator/internal/narration"
	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/internal/tts/engines"
	"github.com/spf13/viper"
)

// app bundles what the commands share for one invocation.
type app struct {
	cfg     config.Config
	factory tts.Factory
	runner  *narration.Runner
	history *history.Store
	cache   *cache.Manager
}

func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newApp builds the engine factory, the optional cache and history, and the
// runner from the loaded configuration. Cache and history failures are
// logged and the feature is skipped.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if cfg.Cache.Enabled {
		if cc, err := cfg.CacheSettings(); err != nil {
			log.Warn("Audio cache disabled", "err", err)
		} else if a.cache, err = cache.NewManager(cc); err != nil {
			log.Warn("Audio cache disabled", "err", err)
		}
	}

	a.factory, err = engines.NewFactory(cfg.EngineConfig(a.cache))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := narration.Options{Factory: a.factory, Retry: cfg.RetryPolicy()}
	if cfg.History.Enabled {
		a.history = openHistory(ctx, cfg)
		if a.history != nil {
			opts.History = a.history
		}
	}
	a.runner = narration.NewRunner(opts)
	return a, nil
}

func openHistory(ctx context.Context, cfg config.Config) *history.Store {
	path, err := cfg.HistoryPath()
	if err != nil {
		log.Warn("Run history disabled", "err", err)
		return nil
	}
	s, err := history.Open(ctx, path)
	if err != nil {
		log.Warn("Run history disabled", "path", path, "err", err)
		return nil
	}
	return s
}

// Close releases the runner, history, and cache.
func (a *app) Close() error {
	var errs []error
	if a.runner != nil {
		errs = append(errs, a.runner.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}
