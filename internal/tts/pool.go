package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Pool is a fixed, index-addressable set of engine handles built for one
// language family. Each handle is invoked by at most one caller at a time.
type Pool struct {
	family  string
	handles []*handle

	mu     sync.RWMutex
	closed bool
}

type handle struct {
	mu     sync.Mutex
	engine Engine
}

// NewPool builds n handles with factory and validates each one. If any
// handle fails to build or validate, the handles built so far are closed and
// the failure is returned.
func NewPool(ctx context.Context, n int, family string, factory Factory) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", n)
	}
	if factory == nil {
		return nil, errors.New("engine factory is required")
	}

	p := &Pool{family: family, handles: make([]*handle, 0, n)}
	for i := 0; i < n; i++ {
		engine, err := factory(ctx, family)
		if err == nil {
			err = engine.Validate()
			if err != nil {
				_ = engine.Close()
			}
		}
		if err != nil {
			_ = p.Close()
			return nil, NewTTSError(ErrorCodeEngineUnavailable,
				fmt.Sprintf("failed to build engine handle %d", i), err).
				WithContext("family", family)
		}
		p.handles = append(p.handles, &handle{engine: engine})
	}

	log.Debug("engine pool ready", "family", family, "size", n)
	return p, nil
}

// Len returns the number of handles.
func (p *Pool) Len() int {
	return len(p.handles)
}

// Family returns the language family the pool was built for.
func (p *Pool) Family() string {
	return p.family
}

// SampleRate returns the native sample rate of the handles.
func (p *Pool) SampleRate() int {
	if len(p.handles) == 0 {
		return 0
	}
	return p.handles[0].engine.GetInfo().SampleRate
}

// Info returns the engine info of the first handle.
func (p *Pool) Info() EngineInfo {
	if len(p.handles) == 0 {
		return EngineInfo{}
	}
	return p.handles[0].engine.GetInfo()
}

// Invoke synthesizes text on handle i mod Len. Calls that land on the same
// handle are serialized. Retrying is left to the caller.
func (p *Pool) Invoke(ctx context.Context, i int, text, voice string, speed float64) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || len(p.handles) == 0 {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, NewTTSError(ErrorCodeCanceled, "synthesis cancelled", err)
	}
	if i < 0 {
		i = -i
	}

	h := p.handles[i%len(p.handles)]
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.engine.Synthesize(ctx, text, voice, speed)
}

// Close releases every handle. Further Invoke calls return ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, h := range p.handles {
		h.mu.Lock()
		if err := h.engine.Close(); err != nil {
			errs = append(errs, err)
		}
		h.mu.Unlock()
	}
	return errors.Join(errs...)
}
