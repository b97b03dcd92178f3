package engines

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/tts"
)

// Cached serves repeated synthesis requests from the audio cache. It does
// not own the cache; Close only closes the wrapped engine.
type Cached struct {
	tts.Engine
	cache *cache.Manager
}

// NewCached wraps engine with c.
func NewCached(engine tts.Engine, c *cache.Manager) *Cached {
	return &Cached{Engine: engine, cache: c}
}

// Synthesize returns cached audio when present and stores fresh output.
func (c *Cached) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	info := c.Engine.GetInfo()
	key := cache.Key{
		Engine: info.Name,
		Family: info.Family,
		Voice:  voice,
		Speed:  speed,
		Text:   text,
	}.String()

	if pcm, level, ok := c.cache.Get(key); ok {
		log.Debug("cache hit", "level", level, "chars", len(text))
		return pcm, nil
	}

	pcm, err := c.Engine.Synthesize(ctx, text, voice, speed)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(key, pcm); err != nil {
		log.Debug("cache store failed", "err", err)
	}
	return pcm, nil
}

var _ tts.Engine = (*Cached)(nil)
