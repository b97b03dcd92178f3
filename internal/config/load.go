package config

import (
	"fmt"
	"os"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// FileName is the config file name without directory.
const FileName = AppName + ".yml"

// DefaultFile is written when no config file exists.
const DefaultFile = `# narrator configuration

# engine: kokoro, piper, or mock
engine: "kokoro"
# voice name, see "narrator voices"
voice: "af_heart"
# speaking speed (0.1 - 3.0)
speed: 1.0
# output sample rate in Hz
sample_rate: 24000
# silence trimming threshold (0 - 1) and margin kept around speech
threshold: 0.06
margin_ms: 10
# longest chunk sent to the engine
max_chars: 200
# chunks synthesized in parallel, and engine instances (0 = batch)
batch: 1
pool: 0

retry:
  attempts: 10
  delay: "1s"

kokoro:
  url: "http://localhost:8880"
  model: "kokoro"
  requests_per_second: 0
  timeout: "60s"

piper:
  command: "piper"
  sample_rate: 22050
  # models:
  #   a: "~/piper/en_US-lessac-medium.onnx"
  #   b: "~/piper/en_GB-alba-medium.onnx"
  # speakers:
  #   af_heart: 0
  timeout: "0s"

cache:
  enabled: false
  # dir: "~/.cache/narrator/audio"
  memory_mb: 64
  disk_mb: 512
  ttl: "720h"

history:
  enabled: true
  # path: "~/.local/share/narrator/history.db"

markdown:
  include_code: false
  skip_headings: false

# log_file: "~/narrator.log"
`

// SetDefaults registers the built-in values with v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("engine", d.Engine)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("speed", d.Speed)
	v.SetDefault("sample_rate", d.SampleRate)
	v.SetDefault("threshold", d.Threshold)
	v.SetDefault("margin_ms", d.MarginMS)
	v.SetDefault("max_chars", d.MaxChars)
	v.SetDefault("batch", d.BatchWidth)
	v.SetDefault("pool", d.PoolSize)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("piper.command", d.Piper.Command)
	v.SetDefault("piper.sample_rate", d.Piper.SampleRate)
	v.SetDefault("kokoro.url", d.Kokoro.URL)
	v.SetDefault("kokoro.model", d.Kokoro.Model)
	v.SetDefault("kokoro.timeout", d.Kokoro.Timeout)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("history.enabled", d.History.Enabled)
}

// Load reads every setting from v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	c := Default()

	if v.IsSet("engine") {
		c.Engine = v.GetString("engine")
	}
	if v.IsSet("voice") {
		c.Voice = v.GetString("voice")
	}
	if v.IsSet("speed") {
		c.Speed = v.GetFloat64("speed")
	}
	if v.IsSet("sample_rate") {
		c.SampleRate = v.GetInt("sample_rate")
	}
	if v.IsSet("threshold") {
		c.Threshold = v.GetFloat64("threshold")
	}
	if v.IsSet("margin_ms") {
		c.MarginMS = v.GetInt("margin_ms")
	}
	if v.IsSet("max_chars") {
		c.MaxChars = v.GetInt("max_chars")
	}
	if v.IsSet("batch") {
		c.BatchWidth = v.GetInt("batch")
	}
	if v.IsSet("pool") {
		c.PoolSize = v.GetInt("pool")
	}

	if v.IsSet("retry.attempts") {
		c.Retry.Attempts = v.GetInt("retry.attempts")
	}
	if v.IsSet("retry.delay") {
		c.Retry.Delay = v.GetDuration("retry.delay")
	}

	if v.IsSet("piper.command") {
		c.Piper.Command = v.GetString("piper.command")
	}
	if v.IsSet("piper.models") {
		c.Piper.Models = v.GetStringMapString("piper.models")
	}
	if v.IsSet("piper.speakers") {
		if err := v.UnmarshalKey("piper.speakers", &c.Piper.Speakers); err != nil {
			return c, fmt.Errorf("%w: piper.speakers: %w", ErrInvalid, err)
		}
	}
	if v.IsSet("piper.sample_rate") {
		c.Piper.SampleRate = v.GetInt("piper.sample_rate")
	}
	if v.IsSet("piper.timeout") {
		c.Piper.Timeout = v.GetDuration("piper.timeout")
	}

	if v.IsSet("kokoro.url") {
		c.Kokoro.URL = v.GetString("kokoro.url")
	}
	if v.IsSet("kokoro.model") {
		c.Kokoro.Model = v.GetString("kokoro.model")
	}
	if v.IsSet("kokoro.requests_per_second") {
		c.Kokoro.RequestsPerSecond = v.GetFloat64("kokoro.requests_per_second")
	}
	if v.IsSet("kokoro.timeout") {
		c.Kokoro.Timeout = v.GetDuration("kokoro.timeout")
	}

	if v.IsSet("cache.enabled") {
		c.Cache.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("cache.dir") {
		c.Cache.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.memory_mb") {
		c.Cache.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.disk_mb") {
		c.Cache.DiskMB = v.GetInt("cache.disk_mb")
	}
	if v.IsSet("cache.ttl") {
		c.Cache.TTL = v.GetDuration("cache.ttl")
	}

	if v.IsSet("history.enabled") {
		c.History.Enabled = v.GetBool("history.enabled")
	}
	if v.IsSet("history.path") {
		c.History.Path = v.GetString("history.path")
	}

	if v.IsSet("markdown.include_code") {
		c.Markdown.IncludeCode = v.GetBool("markdown.include_code")
	}
	if v.IsSet("markdown.skip_headings") {
		c.Markdown.SkipHeadings = v.GetBool("markdown.skip_headings")
	}

	if v.IsSet("log_file") {
		c.LogFile = v.GetString("log_file")
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Dirs returns the directories searched for the config file, most specific
// first. configHome is NARRATOR_CONFIG_HOME.
func Dirs(configHome string) ([]string, error) {
	dirs, err := gap.NewScope(gap.User, AppName).ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if configHome != "" {
		dirs = append([]string{configHome}, dirs...)
	}
	return dirs, nil
}
