package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubEngine struct {
	id       int
	failVal  error
	closed   atomic.Bool
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (s *stubEngine) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)
	time.Sleep(2 * time.Millisecond)
	return []byte{byte(s.id), 0}, nil
}

func (s *stubEngine) GetInfo() EngineInfo {
	return EngineInfo{Name: "stub", SampleRate: 24000, Channels: 1, BitDepth: 16}
}

func (s *stubEngine) Validate() error { return s.failVal }

func (s *stubEngine) Close() error {
	s.closed.Store(true)
	return nil
}

func stubFactory(built *[]*stubEngine, failAt int) Factory {
	var mu sync.Mutex
	return func(ctx context.Context, family string) (Engine, error) {
		mu.Lock()
		defer mu.Unlock()
		e := &stubEngine{id: len(*built)}
		if len(*built) == failAt {
			e.failVal = errors.New("model missing")
		}
		*built = append(*built, e)
		return e, nil
	}
}

func TestNewPool(t *testing.T) {
	var built []*stubEngine
	p, err := NewPool(context.Background(), 3, "a", stubFactory(&built, -1))
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer p.Close()

	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
	if p.Family() != "a" {
		t.Errorf("Family() = %q, want a", p.Family())
	}
	if p.SampleRate() != 24000 {
		t.Errorf("SampleRate() = %d, want 24000", p.SampleRate())
	}
}

func TestNewPool_FailureClosesHandles(t *testing.T) {
	var built []*stubEngine
	_, err := NewPool(context.Background(), 4, "a", stubFactory(&built, 2))
	if err == nil {
		t.Fatal("expected error")
	}

	var te *TTSError
	if !errors.As(err, &te) || te.Code != ErrorCodeEngineUnavailable {
		t.Errorf("expected ENGINE_UNAVAILABLE, got %v", err)
	}
	if !te.IsFatal() {
		t.Error("engine unavailable should be fatal")
	}
	for i, e := range built {
		if !e.closed.Load() {
			t.Errorf("handle %d was not closed", i)
		}
	}
}

func TestNewPool_InvalidSize(t *testing.T) {
	var built []*stubEngine
	if _, err := NewPool(context.Background(), 0, "a", stubFactory(&built, -1)); err == nil {
		t.Error("expected error for size 0")
	}
	if _, err := NewPool(context.Background(), 1, "a", nil); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestPool_InvokeRoundRobin(t *testing.T) {
	var built []*stubEngine
	p, err := NewPool(context.Background(), 2, "a", stubFactory(&built, -1))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	for i, want := range []byte{0, 1, 0, 1, 0} {
		got, err := p.Invoke(context.Background(), i, "hi", "af_heart", 1)
		if err != nil {
			t.Fatalf("Invoke(%d) error = %v", i, err)
		}
		if got[0] != want {
			t.Errorf("Invoke(%d) used handle %d, want %d", i, got[0], want)
		}
	}
}

// TestPool_SerializesHandle drives more callers than handles.
func TestPool_SerializesHandle(t *testing.T) {
	var built []*stubEngine
	p, err := NewPool(context.Background(), 1, "a", stubFactory(&built, -1))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = p.Invoke(context.Background(), i, "hi", "", 1)
		}(i)
	}
	wg.Wait()

	if built[0].overlap.Load() {
		t.Error("handle was invoked concurrently")
	}
}

func TestPool_Close(t *testing.T) {
	var built []*stubEngine
	p, err := NewPool(context.Background(), 2, "a", stubFactory(&built, -1))
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := p.Invoke(context.Background(), 0, "hi", "", 1); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Invoke after Close error = %v, want ErrPoolClosed", err)
	}
}

func TestValidateEngine(t *testing.T) {
	var built []*stubEngine
	res := ValidateEngine(context.Background(), EngineMock, "a", stubFactory(&built, -1))
	if !res.Available || res.Error != nil {
		t.Fatalf("expected available, got %+v", res)
	}
	if res.Details["sample_rate"] != "24000 Hz" {
		t.Errorf("sample_rate detail = %q", res.Details["sample_rate"])
	}

	built = nil
	res = ValidateEngine(context.Background(), EnginePiper, "a", stubFactory(&built, 0))
	if res.Available || res.Error == nil {
		t.Fatal("expected validation failure")
	}
	if res.Guidance == "" {
		t.Error("expected guidance")
	}
	if !built[0].closed.Load() {
		t.Error("probe engine was not closed")
	}
}
