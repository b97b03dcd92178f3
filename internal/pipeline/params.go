// Package pipeline drives chunks through the engine pool in fixed-width
// batches and writes the trimmed audio back in chunk order.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/chunker"
)

// Defaults for a run.
const (
	DefaultVoice            = "af_heart"
	DefaultSpeed            = 1.0
	DefaultSampleRate       = 24000
	DefaultSilenceThreshold = 0.06
	DefaultSilenceMarginMS  = 10
	DefaultBatchWidth       = 1
)

// ErrInvalidParams wraps every Params validation failure.
var ErrInvalidParams = errors.New("invalid synthesis parameters")

// Params are the knobs of one synthesis run.
type Params struct {
	Voice                string
	Speed                float64
	SampleRate           int
	SilenceThreshold     float64
	SilenceMarginSamples int
	MaxChunkChars        int
	BatchWidth           int
	PoolSize             int // 0 means BatchWidth
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Voice:                DefaultVoice,
		Speed:                DefaultSpeed,
		SampleRate:           DefaultSampleRate,
		SilenceThreshold:     DefaultSilenceThreshold,
		SilenceMarginSamples: audio.MarginSamples(DefaultSilenceMarginMS, DefaultSampleRate),
		MaxChunkChars:        chunker.DefaultMaxChars,
		BatchWidth:           DefaultBatchWidth,
	}
}

// Pool returns the number of engine handles the run needs.
func (p Params) Pool() int {
	if p.PoolSize > 0 {
		return p.PoolSize
	}
	return max(p.BatchWidth, 1)
}

// Validate range-checks the parameters.
func (p Params) Validate() error {
	switch {
	case p.Voice == "":
		return fmt.Errorf("%w: voice is required", ErrInvalidParams)
	case p.Speed < 0.1 || p.Speed > 3.0:
		return fmt.Errorf("%w: speed %.2f outside 0.1-3.0", ErrInvalidParams, p.Speed)
	case p.SampleRate < 8000 || p.SampleRate > 192000:
		return fmt.Errorf("%w: sample rate %d outside 8000-192000", ErrInvalidParams, p.SampleRate)
	case p.SilenceThreshold < 0 || p.SilenceThreshold > 1:
		return fmt.Errorf("%w: silence threshold %.3f outside 0-1", ErrInvalidParams, p.SilenceThreshold)
	case p.SilenceMarginSamples < 0:
		return fmt.Errorf("%w: negative silence margin", ErrInvalidParams)
	case p.MaxChunkChars < 1:
		return fmt.Errorf("%w: max chunk chars must be positive", ErrInvalidParams)
	case p.BatchWidth < 1 || p.BatchWidth > 64:
		return fmt.Errorf("%w: batch width %d outside 1-64", ErrInvalidParams, p.BatchWidth)
	case p.PoolSize < 0 || p.PoolSize > 64:
		return fmt.Errorf("%w: pool size %d outside 0-64", ErrInvalidParams, p.PoolSize)
	}
	return nil
}

// RetryPolicy bounds the attempts made for one chunk.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry makes 10 attempts one second apart.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{Attempts: 10, Delay: time.Second}
}
