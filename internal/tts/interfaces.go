package tts

import (
	"context"
)

// Engine defines the contract for text-to-speech engines.
// A single Engine value is not required to be safe for concurrent use;
// the Pool serializes calls per handle.
type Engine interface {
	// Synthesize converts text to audio.
	// Returns signed 16-bit little-endian mono PCM at GetInfo().SampleRate.
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)

	// GetInfo returns engine capabilities and configuration.
	GetInfo() EngineInfo

	// Validate checks if the engine is properly configured and available.
	Validate() error

	// Close releases any resources held by the engine.
	Close() error
}

// EngineInfo describes engine capabilities and configuration.
type EngineInfo struct {
	Name        string // Engine name (e.g., "kokoro", "piper")
	Family      string // Language family the handle was built for
	SampleRate  int    // Native audio sample rate in Hz
	Channels    int    // Always 1
	BitDepth    int    // Always 16
	MaxTextSize int    // Maximum text size in characters, 0 when unbounded
	IsOnline    bool   // Whether the engine talks to a remote service
}

// Factory builds one engine handle configured for a language family.
type Factory func(ctx context.Context, family string) (Engine, error)
