package engines

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/tts"
)

// Config selects and configures an engine.
type Config struct {
	Name   string
	Piper  PiperConfig
	Kokoro KokoroConfig
	Mock   MockConfig

	// Cache, when set, wraps every handle with Cached
	Cache *cache.Manager
}

// NewFactory returns a tts.Factory building handles of the configured engine.
func NewFactory(config Config) (tts.Factory, error) {
	name, err := tts.ValidateEngineSelection(config.Name, "")
	if err != nil {
		return nil, err
	}

	build := func(family string) (tts.Engine, error) {
		switch name {
		case tts.EnginePiper:
			return NewPiperEngine(config.Piper, family)
		case tts.EngineKokoro:
			return NewKokoroEngine(config.Kokoro, family)
		case tts.EngineMock:
			return NewMockEngine(config.Mock, family), nil
		}
		return nil, fmt.Errorf("%w: %s", tts.ErrInvalidEngine, name)
	}

	return func(ctx context.Context, family string) (tts.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		engine, err := build(family)
		if err != nil {
			return nil, err
		}
		if config.Cache != nil {
			return NewCached(engine, config.Cache), nil
		}
		return engine, nil
	}, nil
}
