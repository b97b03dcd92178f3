package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("player is closed")

// pollInterval is how often Play checks whether playback finished.
const pollInterval = 20 * time.Millisecond

// Player plays mono PCM16 audio on the default output device.
// Only one Player may exist per process because oto allows a single context.
type Player struct {
	context    *oto.Context
	sampleRate int

	mu     sync.Mutex
	data   []byte // kept alive while oto reads from it
	active *oto.Player
	closed bool
}

// NewPlayer opens the audio device at sampleRate.
func NewPlayer(sampleRate int) (*Player, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Player{context: ctx, sampleRate: sampleRate}, nil
}

// SampleRate returns the rate the device was opened with.
func (p *Player) SampleRate() int {
	return p.sampleRate
}

// Play blocks until pcm has been played or ctx is done.
func (p *Player) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return errors.New("audio data is empty")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	p.data = append([]byte(nil), pcm...)
	player := p.context.NewPlayer(bytes.NewReader(p.data))
	p.active = player
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		_ = player.Close()
		p.active = nil
		p.data = nil
		p.mu.Unlock()
	}()

	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := p.context.Err(); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// Close stops playback and rejects further calls.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.active != nil {
		p.active.Pause()
	}
	return nil
}
