package engines

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/tts"
)

const defaultMockSampleRate = 24000

// ErrInjected is the cause of failures produced by MockBehavior.FailOn.
var ErrInjected = errors.New("injected failure")

// MockConfig holds configuration for the mock engine.
type MockConfig struct {
	// SampleRate of the generated tone (default 24000)
	SampleRate int

	// Behavior is shared by every handle built from this config, nil for none
	Behavior *MockBehavior
}

// MockBehavior scripts failures and delays and records calls across all
// handles that share it.
type MockBehavior struct {
	mu        sync.Mutex
	failures  map[string]int
	delays    map[string]time.Duration
	calls     map[string]int
	completed []string
	unavail   error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	overlapped  atomic.Bool
	total       atomic.Int64
}

// NewMockBehavior returns an empty behavior.
func NewMockBehavior() *MockBehavior {
	return &MockBehavior{
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
	}
}

// FailOn makes calls whose text contains substr fail the next times calls.
// A negative count fails forever.
func (b *MockBehavior) FailOn(substr string, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[substr] = times
}

// Heal removes every scripted failure.
func (b *MockBehavior) Heal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]int)
}

// DelayOn delays calls whose text contains substr.
func (b *MockBehavior) DelayOn(substr string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[substr] = d
}

// Unavailable makes Validate fail with err.
func (b *MockBehavior) Unavailable(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavail = err
}

// Calls returns how many times text was synthesized, failures included.
func (b *MockBehavior) Calls(text string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[text]
}

// TotalCalls returns the number of Synthesize calls across all handles.
func (b *MockBehavior) TotalCalls() int {
	return int(b.total.Load())
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (b *MockBehavior) MaxInFlight() int {
	return int(b.maxInFlight.Load())
}

// Overlapped reports whether any single handle was ever entered twice at once.
func (b *MockBehavior) Overlapped() bool {
	return b.overlapped.Load()
}

// Completed returns texts in the order their synthesis finished.
func (b *MockBehavior) Completed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.completed...)
}

func (b *MockBehavior) enter(text string) (time.Duration, error) {
	b.total.Add(1)
	n := b.inFlight.Add(1)
	for {
		cur := b.maxInFlight.Load()
		if n <= cur || b.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[text]++

	var delay time.Duration
	for sub, d := range b.delays {
		if strings.Contains(text, sub) && d > delay {
			delay = d
		}
	}
	for sub, left := range b.failures {
		if !strings.Contains(text, sub) || left == 0 {
			continue
		}
		if left > 0 {
			b.failures[sub] = left - 1
		}
		return delay, ErrInjected
	}
	return delay, nil
}

func (b *MockBehavior) leave(text string, ok bool) {
	b.inFlight.Add(-1)
	if !ok {
		return
	}
	b.mu.Lock()
	b.completed = append(b.completed, text)
	b.mu.Unlock()
}

// MockEngine produces a deterministic tone framed by silence, with length
// proportional to the text.
type MockEngine struct {
	family     string
	sampleRate int
	behavior   *MockBehavior
	busy       atomic.Bool
}

// NewMockEngine creates a mock engine for one voice family.
func NewMockEngine(config MockConfig, family string) *MockEngine {
	if config.SampleRate == 0 {
		config.SampleRate = defaultMockSampleRate
	}
	return &MockEngine{
		family:     family,
		sampleRate: config.SampleRate,
		behavior:   config.Behavior,
	}
}

// Synthesize implements tts.Engine.
func (e *MockEngine) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "empty text", tts.ErrEmptyText)
	}

	if !e.busy.CompareAndSwap(false, true) {
		if e.behavior != nil {
			e.behavior.overlapped.Store(true)
		}
	} else {
		defer e.busy.Store(false)
	}

	if e.behavior != nil {
		delay, err := e.behavior.enter(text)
		ok := false
		defer func() { e.behavior.leave(text, ok) }()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, tts.NewTTSError(tts.ErrorCodeCanceled, "mock interrupted", ctx.Err())
			}
		}
		if err != nil {
			return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "mock synthesis failed", err)
		}
		ok = true
	}

	return audio.EncodePCM16(Tone(e.sampleRate, text, voice, speed)), nil
}

// Tone returns the samples the mock engine produces for text.
func Tone(sampleRate int, text, voice string, speed float64) []float32 {
	if speed <= 0 {
		speed = 1
	}
	pad := sampleRate / 50
	body := int(float64(utf8.RuneCountInString(text)*sampleRate/100) / speed)
	if body < pad {
		body = pad
	}
	freq := 220.0 + float64(len(voice)%5)*20

	out := make([]float32, pad+body+pad)
	for i := 0; i < body; i++ {
		out[pad+i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// GetInfo returns engine capabilities and configuration.
func (e *MockEngine) GetInfo() tts.EngineInfo {
	return tts.EngineInfo{
		Name:       tts.EngineMock,
		Family:     e.family,
		SampleRate: e.sampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// Validate fails only when the behavior says so.
func (e *MockEngine) Validate() error {
	if e.behavior == nil {
		return nil
	}
	e.behavior.mu.Lock()
	defer e.behavior.mu.Unlock()
	if e.behavior.unavail != nil {
		return tts.NewTTSError(tts.ErrorCodeEngineUnavailable, "mock unavailable", e.behavior.unavail)
	}
	return nil
}

// Close implements tts.Engine.
func (e *MockEngine) Close() error {
	return nil
}

var _ tts.Engine = (*MockEngine)(nil)
