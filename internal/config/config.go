// Package config loads narrator settings from the YAML config file, the
// environment, and command line flags bound through viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/pipeline"
	"github.com/dgnsrekt/narrator/internal/textprep"
	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/internal/tts/engines"
	"github.com/dgnsrekt/narrator/utils"
	gap "github.com/muesli/go-app-paths"
)

// AppName names the config, cache, and data directories.
const AppName = "narrator"

// ErrInvalid is wrapped by every Validate error.
var ErrInvalid = errors.New("invalid configuration")

// Env holds process-level switches read with env.ParseAs.
type Env struct {
	Debug      bool   `env:"NARRATOR_DEBUG"`
	LogFile    string `env:"NARRATOR_LOG_FILE"`
	ConfigHome string `env:"NARRATOR_CONFIG_HOME"`
	NoProgress bool   `env:"NARRATOR_NO_PROGRESS"`
}

// Config is the complete set of narrator settings.
type Config struct {
	Engine string

	Voice      string
	Speed      float64
	SampleRate int
	Threshold  float64
	MarginMS   int
	MaxChars   int
	BatchWidth int
	PoolSize   int

	Retry    RetryConfig
	Piper    PiperConfig
	Kokoro   KokoroConfig
	Cache    CacheConfig
	History  HistoryConfig
	Markdown MarkdownConfig

	LogFile string
}

// RetryConfig bounds chunk retries.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// PiperConfig configures the piper subprocess engine.
type PiperConfig struct {
	Command    string
	Models     map[string]string
	Speakers   map[string]int
	SampleRate int
	Timeout    time.Duration
}

// KokoroConfig configures the HTTP engine.
type KokoroConfig struct {
	URL               string
	Model             string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// CacheConfig configures the audio cache.
type CacheConfig struct {
	Enabled  bool
	Dir      string
	MemoryMB int
	DiskMB   int
	TTL      time.Duration
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// MarkdownConfig controls the Markdown pre-pass.
type MarkdownConfig struct {
	IncludeCode  bool
	SkipHeadings bool
}

// Default returns the built-in settings.
func Default() Config {
	p := pipeline.DefaultParams()
	r := pipeline.DefaultRetry()
	return Config{
		Engine:     tts.EngineKokoro,
		Voice:      p.Voice,
		Speed:      p.Speed,
		SampleRate: p.SampleRate,
		Threshold:  p.SilenceThreshold,
		MarginMS:   pipeline.DefaultSilenceMarginMS,
		MaxChars:   p.MaxChunkChars,
		BatchWidth: p.BatchWidth,
		Retry:      RetryConfig{Attempts: r.Attempts, Delay: r.Delay},
		Piper: PiperConfig{
			Command:    "piper",
			SampleRate: 22050,
		},
		Kokoro: KokoroConfig{
			URL:     "http://localhost:8880",
			Model:   "kokoro",
			Timeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			MemoryMB: 64,
			DiskMB:   512,
			TTL:      30 * 24 * time.Hour,
		},
		History: HistoryConfig{Enabled: true},
	}
}

// Validate range-checks the settings.
func (c Config) Validate() error {
	if _, err := tts.ValidateEngineSelection(c.Engine, ""); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Voice != "", "voice is required"},
		{c.Speed >= 0.1 && c.Speed <= 3.0, fmt.Sprintf("speed must be between 0.1 and 3.0, got %.2f", c.Speed)},
		{c.SampleRate >= 8000 && c.SampleRate <= 192000, fmt.Sprintf("sample_rate must be between 8000 and 192000, got %d", c.SampleRate)},
		{c.Threshold >= 0 && c.Threshold <= 1, fmt.Sprintf("threshold must be between 0 and 1, got %.3f", c.Threshold)},
		{c.MarginMS >= 0 && c.MarginMS <= 1000, fmt.Sprintf("margin_ms must be between 0 and 1000, got %d", c.MarginMS)},
		{c.MaxChars >= 20 && c.MaxChars <= 5000, fmt.Sprintf("max_chars must be between 20 and 5000, got %d", c.MaxChars)},
		{c.BatchWidth >= 1 && c.BatchWidth <= 64, fmt.Sprintf("batch must be between 1 and 64, got %d", c.BatchWidth)},
		{c.PoolSize >= 0 && c.PoolSize <= 64, fmt.Sprintf("pool must be between 0 and 64, got %d", c.PoolSize)},
		{c.Retry.Attempts >= 1 && c.Retry.Attempts <= 100, fmt.Sprintf("retry.attempts must be between 1 and 100, got %d", c.Retry.Attempts)},
		{c.Retry.Delay >= 0, "retry.delay must not be negative"},
		{c.Kokoro.RequestsPerSecond >= 0, "kokoro.requests_per_second must not be negative"},
		{c.Piper.SampleRate > 0, "piper.sample_rate must be positive"},
		{!c.Cache.Enabled || c.Cache.MemoryMB >= 0 && c.Cache.DiskMB > 0, "cache sizes must be positive"},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, check.msg)
		}
	}
	return nil
}

// Params returns the run parameters.
func (c Config) Params() pipeline.Params {
	return pipeline.Params{
		Voice:                c.Voice,
		Speed:                c.Speed,
		SampleRate:           c.SampleRate,
		SilenceThreshold:     c.Threshold,
		SilenceMarginSamples: audio.MarginSamples(float64(c.MarginMS), c.SampleRate),
		MaxChunkChars:        c.MaxChars,
		BatchWidth:           c.BatchWidth,
		PoolSize:             c.PoolSize,
	}
}

// RetryPolicy returns the chunk retry policy.
func (c Config) RetryPolicy() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{Attempts: c.Retry.Attempts, Delay: c.Retry.Delay}
}

// TextOptions returns the Markdown pre-pass options.
func (c Config) TextOptions() textprep.Options {
	return textprep.Options{IncludeCode: c.Markdown.IncludeCode, SkipHeadings: c.Markdown.SkipHeadings}
}

// EngineConfig returns the engine factory configuration. audioCache may be nil.
func (c Config) EngineConfig(audioCache *cache.Manager) engines.Config {
	models := make(map[string]string, len(c.Piper.Models))
	for family, path := range c.Piper.Models {
		models[family] = utils.ExpandPath(path)
	}
	return engines.Config{
		Name: c.Engine,
		Piper: engines.PiperConfig{
			Command:    c.Piper.Command,
			Models:     models,
			Speakers:   c.Piper.Speakers,
			SampleRate: c.Piper.SampleRate,
			Timeout:    c.Piper.Timeout,
		},
		Kokoro: engines.KokoroConfig{
			URL:               c.Kokoro.URL,
			Model:             c.Kokoro.Model,
			RequestsPerSecond: c.Kokoro.RequestsPerSecond,
			Timeout:           c.Kokoro.Timeout,
		},
		Cache: audioCache,
	}
}

// CacheSettings returns the cache configuration, resolving the default
// directory when none is set.
func (c Config) CacheSettings() (cache.Config, error) {
	dir := utils.ExpandPath(c.Cache.Dir)
	if dir == "" {
		d, err := gap.NewScope(gap.User, AppName).CacheDir()
		if err != nil {
			return cache.Config{}, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(d, "audio")
	}
	cfg := cache.DefaultConfig(dir)
	cfg.MemoryCapacity = int64(c.Cache.MemoryMB) << 20
	cfg.DiskCapacity = int64(c.Cache.DiskMB) << 20
	cfg.TTL = c.Cache.TTL
	return cfg, nil
}

// HistoryPath returns the history database path.
func (c Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return utils.ExpandPath(c.History.Path), nil
	}
	p, err := gap.NewScope(gap.User, AppName).DataPath("history.db")
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return p, nil
}
