package queue

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/internal/narration"
	"github.com/dgnsrekt/narrator/internal/pipeline"
	"github.com/dgnsrekt/narrator/internal/tts/engines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns a fixed outcome per output path.
type scripted struct {
	mu       sync.Mutex
	outcomes map[string]narration.Outcome
	requests []narration.Request
	onRun    func(req narration.Request, ctl *narration.Control)
}

func (s *scripted) Synthesize(_ context.Context, req narration.Request, ctl *narration.Control) iter.Seq[narration.Update] {
	return func(yield func(narration.Update) bool) {
		s.mu.Lock()
		s.requests = append(s.requests, req)
		outcome, ok := s.outcomes[req.OutputPath]
		s.mu.Unlock()
		if !ok {
			outcome = narration.Success
		}
		if s.onRun != nil {
			s.onRun(req, ctl)
		}

		if !yield(narration.Update{Progress: nil, Outcome: narration.Running, OutputPath: req.OutputPath}) {
			return
		}
		u := narration.Update{Outcome: outcome, OutputPath: req.OutputPath}
		if outcome == narration.Failed {
			u.Err = errors.New("engine exploded")
		}
		yield(u)
	}
}

func load(string) (string, error) {
	return "Some text.", nil
}

func newQueue(t *testing.T, inputs ...string) *Queue {
	t.Helper()
	q := New()
	for _, in := range inputs {
		require.NoError(t, q.Add(in, ""))
	}
	return q
}

func statuses(q *Queue) []Status {
	var out []Status
	for _, it := range q.Items() {
		out = append(out, it.Status)
	}
	return out
}

func TestDefaultOutput(t *testing.T) {
	tests := map[string]string{
		"book.txt":          "book.wav",
		"dir/notes.md":      "dir/notes.wav",
		"no-extension":      "no-extension.wav",
		"archive.tar.gz":    "archive.tar.wav",
		"/abs/path/ch1.txt": "/abs/path/ch1.wav",
	}
	for in, want := range tests {
		assert.Equal(t, want, DefaultOutput(in), in)
	}
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec, input, output string
	}{
		{"book.txt", "book.txt", "book.wav"},
		{"book.txt:out/book.wav", "book.txt", "out/book.wav"},
		{`C:\books\a.txt`, `C:\books\a.txt`, `C:\books\a.wav`},
		{"in.txt:", "in.txt", ""},
	}
	for _, tt := range tests {
		in, out := ParseSpec(tt.spec)
		assert.Equal(t, tt.input, in, tt.spec)
		assert.Equal(t, tt.output, out, tt.spec)
	}
}

func TestQueue_AddRemove(t *testing.T) {
	q := newQueue(t, "a.txt", "b.txt")
	assert.Equal(t, 2, q.Len())
	assert.ErrorIs(t, q.Add("other/../a.txt", "a.wav"), ErrDuplicate)
	assert.Error(t, q.Add("", ""))

	require.NoError(t, q.Remove(0))
	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "b.txt", items[0].Input)
	assert.Equal(t, "b.wav", items[0].Output)
	assert.Equal(t, Pending, items[0].Status)
	assert.Error(t, q.Remove(5))

	require.NoError(t, q.Clear())
	assert.Zero(t, q.Len())
}

func TestQueue_RunAll(t *testing.T) {
	q := newQueue(t, "a.txt", "b.txt", "c.txt")
	s := &scripted{}

	var seen []int
	stats, err := q.Run(context.Background(), s, nil, Options{
		Params: pipeline.DefaultParams(),
		Load:   load,
		OnUpdate: func(i int, _ Item, u narration.Update) {
			if u.Final() {
				seen = append(seen, i)
			}
		},
	})
	require.NoError(t, err)

	assert.Equal(t, narration.Success, stats.Outcome)
	assert.Equal(t, 3, stats.Completed)
	assert.Zero(t, stats.Remaining)
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, []Status{Completed, Completed, Completed}, statuses(q))
	for _, req := range s.requests {
		assert.True(t, req.Resume, "queue items always resume")
		assert.Equal(t, "Some text.", req.Text)
	}
}

func TestQueue_StopsAtFirstNonSuccess(t *testing.T) {
	tests := []struct {
		name    string
		outcome narration.Outcome
		status  Status
		wantErr bool
	}{
		{"paused", narration.Paused, Paused, false},
		{"stopped", narration.Stopped, Stopped, false},
		{"failed", narration.Failed, Failed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(t, "a.txt", "b.txt", "c.txt")
			s := &scripted{outcomes: map[string]narration.Outcome{"b.wav": tt.outcome}}

			stats, err := q.Run(context.Background(), s, nil, Options{Params: pipeline.DefaultParams(), Load: load})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "queue item 2")
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.outcome, stats.Outcome)
			assert.Equal(t, 1, stats.Completed)
			assert.Equal(t, 2, stats.Remaining)
			assert.Equal(t, []Status{Completed, tt.status, Pending}, statuses(q))
			assert.Len(t, s.requests, 2)
		})
	}
}

func TestQueue_AbortAfterItem(t *testing.T) {
	q := newQueue(t, "a.txt", "b.txt")
	s := &scripted{onRun: func(_ narration.Request, ctl *narration.Control) { ctl.Pause() }}

	stats, err := q.Run(context.Background(), s, narration.NewControl(), Options{Params: pipeline.DefaultParams(), Load: load})
	require.NoError(t, err)
	assert.Equal(t, narration.Paused, stats.Outcome)
	assert.Equal(t, []Status{Completed, Pending}, statuses(q))
}

func TestQueue_LoadFailure(t *testing.T) {
	q := newQueue(t, filepath.Join(t.TempDir(), "missing.txt"), "b.txt")

	stats, err := q.Run(context.Background(), &scripted{}, nil, Options{Params: pipeline.DefaultParams()})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, narration.Failed, stats.Outcome)
	assert.Equal(t, []Status{Failed, Pending}, statuses(q))
}

func TestQueue_Empty(t *testing.T) {
	_, err := New().Run(context.Background(), &scripted{}, nil, Options{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestQueue_BusyWhileRunning(t *testing.T) {
	q := newQueue(t, "a.txt")
	s := &scripted{onRun: func(narration.Request, *narration.Control) {
		assert.ErrorIs(t, q.Add("z.txt", ""), ErrBusy)
		assert.ErrorIs(t, q.Clear(), ErrBusy)
		_, err := q.Run(context.Background(), &scripted{}, nil, Options{})
		assert.ErrorIs(t, err, ErrBusy)
	}}

	_, err := q.Run(context.Background(), s, nil, Options{Params: pipeline.DefaultParams(), Load: load})
	require.NoError(t, err)
	require.NoError(t, q.Add("z.txt", ""))
}

// TestQueue_ResumesAfterFailure runs two real files through the mock engine.
// The second file fails, is fixed, and the rerun skips the completed item.
func TestQueue_ResumesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "one.txt")
	second := filepath.Join(dir, "two.txt")
	require.NoError(t, os.WriteFile(first, []byte("The first file. It is short."), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("The second file. This part breaks."), 0o644))

	b := engines.NewMockBehavior()
	b.FailOn("breaks", -1)
	factory, err := engines.NewFactory(engines.Config{Name: "mock", Mock: engines.MockConfig{Behavior: b}})
	require.NoError(t, err)
	runner := narration.NewRunner(narration.Options{
		Factory: factory,
		Retry:   pipeline.RetryPolicy{Attempts: 2, Delay: time.Millisecond},
	})
	defer runner.Close()

	q := newQueue(t, first, second)
	opts := Options{Params: pipeline.DefaultParams()}

	stats, err := q.Run(context.Background(), runner, nil, opts)
	require.Error(t, err)
	assert.Equal(t, narration.Failed, stats.Outcome)
	assert.Equal(t, []Status{Completed, Failed}, statuses(q))
	assert.FileExists(t, second+".lock")

	b.Heal()
	calls := b.Calls("The first file.")
	stats, err = q.Run(context.Background(), runner, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, narration.Success, stats.Outcome)
	assert.Equal(t, []Status{Completed, Completed}, statuses(q))
	assert.Equal(t, calls, b.Calls("The first file."), "completed item was converted again")
	assert.NoFileExists(t, second+".lock")
	assert.FileExists(t, filepath.Join(dir, "two.wav"))
}
