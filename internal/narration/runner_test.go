package narration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/narrator/internal/checkpoint"
	"github.com/dgnsrekt/narrator/internal/history"
	"github.com/dgnsrekt/narrator/internal/pipeline"
	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/internal/tts/engines"
	"github.com/dgnsrekt/narrator/internal/voices"
	"github.com/dgnsrekt/narrator/internal/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 13 chunks; index 5 is "The third line fails."
const story = "The first line. The second line.\nThe third line fails. The fourth line.\nThe fifth line."

const storyChunks = 13

func newRunner(t *testing.T, b *engines.MockBehavior) *Runner {
	t.Helper()
	factory, err := engines.NewFactory(engines.Config{Name: "mock", Mock: engines.MockConfig{Behavior: b}})
	require.NoError(t, err)
	r := NewRunner(Options{
		Factory: factory,
		Retry:   pipeline.RetryPolicy{Attempts: 3, Delay: time.Millisecond},
	})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func params(width int) pipeline.Params {
	p := pipeline.DefaultParams()
	p.BatchWidth = width
	return p
}

type fixture struct {
	dir    string
	input  string
	output string
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	return fixture{
		dir:    dir,
		input:  filepath.Join(dir, "story.txt"),
		output: filepath.Join(dir, "story.wav"),
	}
}

func (f fixture) request(p pipeline.Params) Request {
	return Request{Text: story, InputPath: f.input, OutputPath: f.output, Params: p, Resume: true}
}

func (f fixture) checkpointPath() string {
	return checkpoint.PathFor(f.input, f.output)
}

// drain runs seq to completion and returns the progress updates and the
// terminal update.
func drain(t *testing.T, seq func(func(Update) bool), onProgress func(Update)) ([]Update, Update) {
	t.Helper()
	var (
		updates []Update
		final   Update
		finals  int
	)
	for u := range seq {
		if u.Final() {
			final = u
			finals++
			continue
		}
		updates = append(updates, u)
		if onProgress != nil {
			onProgress(u)
		}
	}
	require.Equal(t, 1, finals, "expected exactly one terminal update")
	return updates, final
}

// reference narrates story in one go and returns the output bytes.
func reference(t *testing.T, p pipeline.Params) []byte {
	t.Helper()
	f := newFixture(t)
	r := newRunner(t, nil)
	_, final := drain(t, r.Synthesize(context.Background(), f.request(p), nil), nil)
	require.Equal(t, Success, final.Outcome)
	data, err := os.ReadFile(f.output)
	require.NoError(t, err)
	return data
}

func TestSynthesize_Success(t *testing.T) {
	f := newFixture(t)
	r := newRunner(t, nil)
	ctl := NewControl()

	updates, final := drain(t, r.Synthesize(context.Background(), f.request(params(3)), ctl), nil)

	assert.Equal(t, Success, final.Outcome)
	assert.NoError(t, final.Err)
	assert.Equal(t, storyChunks, final.ChunksDone)
	assert.Equal(t, storyChunks, final.ChunksTotal)
	assert.False(t, final.Resumed)
	require.Len(t, updates, 5)
	assert.Equal(t, "Completed batch 1/5: The first line. The second line.", updates[0].Progress.Message)
	assert.Equal(t, Idle, ctl.State())

	assert.NoFileExists(t, f.checkpointPath())
	st, err := os.Stat(f.output)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(wav.HeaderSize))
}

func TestSynthesize_PauseAndResume(t *testing.T) {
	want := reference(t, params(2))

	f := newFixture(t)
	r := newRunner(t, nil)
	ctl := NewControl()

	_, final := drain(t, r.Synthesize(context.Background(), f.request(params(2)), ctl), func(Update) { ctl.Pause() })

	require.Equal(t, Paused, final.Outcome)
	assert.Equal(t, PausedState, ctl.State())
	// The pause lands after the batch that was in flight when it was asked for.
	assert.Equal(t, 4, final.ChunksDone)
	require.NotNil(t, final.Checkpoint)
	assert.Equal(t, 4, final.Checkpoint.FailedChunkIndex)

	cp, err := checkpoint.Load(f.checkpointPath())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 4, cp.FailedChunkIndex)
	assert.Equal(t, "af_heart", cp.Voice)
	assert.Equal(t, 2, cp.BatchWidth)
	assert.NotEmpty(t, cp.TextSHA256)

	_, final = drain(t, r.Synthesize(context.Background(), f.request(params(2)), NewControl()), nil)
	require.Equal(t, Success, final.Outcome)
	assert.True(t, final.Resumed)
	assert.NoFileExists(t, f.checkpointPath())

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got, "resumed output differs from an uninterrupted run")
}

func TestSynthesize_Stop(t *testing.T) {
	f := newFixture(t)
	r := newRunner(t, nil)
	ctl := NewControl()

	_, final := drain(t, r.Synthesize(context.Background(), f.request(params(1)), ctl), func(Update) { ctl.Stop() })

	assert.Equal(t, Stopped, final.Outcome)
	assert.Equal(t, StoppedState, ctl.State())
	assert.Less(t, final.ChunksDone, storyChunks)
	assert.Nil(t, final.Checkpoint)
	assert.NoFileExists(t, f.checkpointPath())
	assert.FileExists(t, f.output)
}

func TestSynthesize_FailureThenResume(t *testing.T) {
	want := reference(t, params(1))

	f := newFixture(t)
	b := engines.NewMockBehavior()
	b.FailOn("fails", -1)
	r := newRunner(t, b)

	_, final := drain(t, r.Synthesize(context.Background(), f.request(params(1)), nil), nil)

	require.Equal(t, Failed, final.Outcome)
	var chunkErr *pipeline.ChunkError
	require.ErrorAs(t, final.Err, &chunkErr)
	assert.Equal(t, 5, chunkErr.Index)
	assert.Equal(t, 3, b.Calls("The third line fails."))

	cp, err := checkpoint.Load(f.checkpointPath())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 5, cp.FailedChunkIndex)
	assert.Equal(t, "failed to process chunk after 3 retries: The third line fails.", cp.ErrorMessage)

	partial, err := os.ReadFile(f.output)
	require.NoError(t, err)
	require.Greater(t, len(partial), wav.HeaderSize)
	assert.Equal(t, want[wav.HeaderSize:len(partial)], partial[wav.HeaderSize:], "partial output is not a prefix")

	b.Heal()
	_, final = drain(t, r.Synthesize(context.Background(), f.request(params(1)), nil), nil)
	require.Equal(t, Success, final.Outcome)
	assert.NoFileExists(t, f.checkpointPath())
	// Chunks before the failure are not synthesized again.
	assert.Equal(t, 1, b.Calls("The first line."))

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type sinkFunc func(samples []float32) error

func (f sinkFunc) Append(samples []float32) error { return f(samples) }

var errDiskFull = errors.New("disk full")

// TestSynthesize_WriteFailureThenResume fails the write of chunk 7 in the
// middle of a batch and resumes from the checkpoint it leaves.
func TestSynthesize_WriteFailureThenResume(t *testing.T) {
	const failAt = 7

	// Record how much audio each chunk contributes to an uninterrupted run.
	ref := newFixture(t)
	rr := newRunner(t, nil)
	var sizes []int
	rr.wrapSink = func(in pipeline.Sink) pipeline.Sink {
		return sinkFunc(func(samples []float32) error {
			sizes = append(sizes, len(samples))
			return in.Append(samples)
		})
	}
	_, final := drain(t, rr.Synthesize(context.Background(), ref.request(params(3)), nil), nil)
	require.Equal(t, Success, final.Outcome)
	require.Len(t, sizes, storyChunks)
	want, err := os.ReadFile(ref.output)
	require.NoError(t, err)

	f := newFixture(t)
	r := newRunner(t, nil)
	written := 0
	r.wrapSink = func(in pipeline.Sink) pipeline.Sink {
		return sinkFunc(func(samples []float32) error {
			if written == failAt {
				return errDiskFull
			}
			written++
			return in.Append(samples)
		})
	}

	_, final = drain(t, r.Synthesize(context.Background(), f.request(params(3)), nil), nil)
	require.Equal(t, Failed, final.Outcome)
	require.ErrorIs(t, final.Err, errDiskFull)
	assert.Equal(t, failAt, final.ChunksDone)

	cp, err := checkpoint.Load(f.checkpointPath())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, failAt, cp.FailedChunkIndex)
	assert.Contains(t, cp.ErrorMessage, "disk full")

	committed := 0
	for _, n := range sizes[:failAt] {
		committed += n * 2
	}
	partial, err := os.ReadFile(f.output)
	require.NoError(t, err)
	require.Len(t, partial, wav.HeaderSize+committed, "output should hold exactly the confirmed chunks")
	assert.Equal(t, want[wav.HeaderSize:wav.HeaderSize+committed], partial[wav.HeaderSize:])

	r.wrapSink = nil
	_, final = drain(t, r.Synthesize(context.Background(), f.request(params(3)), nil), nil)
	require.Equal(t, Success, final.Outcome)
	assert.True(t, final.Resumed)
	assert.NoFileExists(t, f.checkpointPath())

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got, "resumed output differs from an uninterrupted run")
}

// TestSynthesize_ZeroSilenceParamsSurviveResume pauses a run that keeps every
// sample and resumes it with the default trim settings.
func TestSynthesize_ZeroSilenceParamsSurviveResume(t *testing.T) {
	zero := params(1)
	zero.SilenceThreshold = 0
	zero.SilenceMarginSamples = 0
	want := reference(t, zero)
	require.NotEqual(t, reference(t, params(1)), want, "trim settings should change the output")

	f := newFixture(t)
	r := newRunner(t, nil)
	ctl := NewControl()
	_, final := drain(t, r.Synthesize(context.Background(), f.request(zero), ctl), func(Update) { ctl.Pause() })
	require.Equal(t, Paused, final.Outcome)

	cp, err := checkpoint.Load(f.checkpointPath())
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.NotNil(t, cp.SilenceThreshold)
	require.NotNil(t, cp.SilenceMarginSamples)
	assert.Zero(t, *cp.SilenceThreshold)
	assert.Zero(t, *cp.SilenceMarginSamples)

	_, final = drain(t, r.Synthesize(context.Background(), f.request(params(1)), nil), nil)
	require.Equal(t, Success, final.Outcome)

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got, "resume did not keep the zero trim settings")
}

func TestSynthesize_CheckpointParamsWin(t *testing.T) {
	want := reference(t, params(1))

	f := newFixture(t)
	r := newRunner(t, nil)
	ctl := NewControl()
	_, final := drain(t, r.Synthesize(context.Background(), f.request(params(1)), ctl), func(Update) { ctl.Pause() })
	require.Equal(t, Paused, final.Outcome)

	other := params(1)
	other.Voice = "am_adam"
	other.Speed = 1.5
	_, final = drain(t, r.Synthesize(context.Background(), f.request(other), nil), nil)
	require.Equal(t, Success, final.Outcome)

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSynthesize_FreshDiscardsCheckpoint(t *testing.T) {
	want := reference(t, params(1))

	f := newFixture(t)
	r := newRunner(t, nil)
	ctl := NewControl()
	_, final := drain(t, r.Synthesize(context.Background(), f.request(params(1)), ctl), func(Update) { ctl.Pause() })
	require.Equal(t, Paused, final.Outcome)
	require.FileExists(t, f.checkpointPath())

	req := f.request(params(1))
	req.Resume = false
	_, final = drain(t, r.Synthesize(context.Background(), req, nil), nil)
	require.Equal(t, Success, final.Outcome)
	assert.False(t, final.Resumed)
	assert.NoFileExists(t, f.checkpointPath())

	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSynthesize_InconsistentCheckpoint(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f fixture)
		output bool
	}{
		{
			name: "index past the end",
			setup: func(t *testing.T, f fixture) {
				require.NoError(t, checkpoint.Save(f.checkpointPath(), &checkpoint.Checkpoint{
					FailedChunkIndex: 999, Voice: "af_heart", Speed: 1, SampleRate: 24000,
				}))
			},
			output: true,
		},
		{
			name: "output missing",
			setup: func(t *testing.T, f fixture) {
				require.NoError(t, checkpoint.Save(f.checkpointPath(), &checkpoint.Checkpoint{
					FailedChunkIndex: 3, Voice: "af_heart", Speed: 1, SampleRate: 24000,
				}))
			},
		},
		{
			name: "corrupt checkpoint",
			setup: func(t *testing.T, f fixture) {
				require.NoError(t, os.WriteFile(f.checkpointPath(), []byte("{not json"), 0o644))
			},
			output: true,
		},
		{
			name: "unknown voice in checkpoint",
			setup: func(t *testing.T, f fixture) {
				require.NoError(t, checkpoint.Save(f.checkpointPath(), &checkpoint.Checkpoint{
					FailedChunkIndex: 2, Voice: "zz_nobody", Speed: 1, SampleRate: 24000,
				}))
			},
			output: true,
		},
		{
			name: "output is not a wav file",
			setup: func(t *testing.T, f fixture) {
				require.NoError(t, checkpoint.Save(f.checkpointPath(), &checkpoint.Checkpoint{
					FailedChunkIndex: 2, Voice: "af_heart", Speed: 1, SampleRate: 24000,
				}))
				require.NoError(t, os.WriteFile(f.output, []byte("garbage"), 0o644))
			},
		},
	}

	want := reference(t, params(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.output {
				w, err := wav.Create(f.output, 24000)
				require.NoError(t, err)
				require.NoError(t, w.Close())
			}
			tt.setup(t, f)

			r := newRunner(t, nil)
			_, final := drain(t, r.Synthesize(context.Background(), f.request(params(1)), nil), nil)

			require.Equal(t, Success, final.Outcome)
			assert.Equal(t, storyChunks, final.ChunksDone)
			assert.NoFileExists(t, f.checkpointPath())
			got, err := os.ReadFile(f.output)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSynthesize_InputFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request, b *engines.MockBehavior)
		target error
	}{
		{
			name:   "empty text",
			mutate: func(r *Request, _ *engines.MockBehavior) { r.Text = "  \n\t" },
			target: tts.ErrEmptyText,
		},
		{
			name:   "unknown voice",
			mutate: func(r *Request, _ *engines.MockBehavior) { r.Params.Voice = "af_hart" },
			target: voices.ErrUnknownVoice,
		},
		{
			name:   "invalid speed",
			mutate: func(r *Request, _ *engines.MockBehavior) { r.Params.Speed = 9 },
			target: pipeline.ErrInvalidParams,
		},
		{
			name:   "no output path",
			mutate: func(r *Request, _ *engines.MockBehavior) { r.OutputPath = "" },
			target: ErrNoOutput,
		},
		{
			name:   "engine unavailable",
			mutate: func(_ *Request, b *engines.MockBehavior) { b.Unavailable(errors.New("model not installed")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			// A checkpoint from an earlier run must survive a failed start.
			require.NoError(t, checkpoint.Save(f.checkpointPath(), &checkpoint.Checkpoint{
				FailedChunkIndex: 2, Voice: "af_heart", Speed: 1, SampleRate: 24000,
			}))

			b := engines.NewMockBehavior()
			req := f.request(params(1))
			req.Resume = false
			tt.mutate(&req, b)

			r := newRunner(t, b)
			updates, final := drain(t, r.Synthesize(context.Background(), req, nil), nil)

			assert.Empty(t, updates)
			assert.Equal(t, Failed, final.Outcome)
			require.Error(t, final.Err)
			if tt.target != nil {
				assert.ErrorIs(t, final.Err, tt.target)
			} else {
				assert.True(t, tts.IsFatal(final.Err))
			}
			assert.Nil(t, final.Checkpoint)
			assert.NoFileExists(t, f.output)
			assert.FileExists(t, f.checkpointPath())
			assert.Zero(t, b.TotalCalls())
		})
	}
}

func TestSynthesize_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	r := newRunner(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, final := drain(t, r.Synthesize(ctx, f.request(params(1)), nil), func(Update) { cancel() })

	require.Equal(t, Paused, final.Outcome)
	assert.ErrorIs(t, final.Err, context.Canceled)
	require.NotNil(t, final.Checkpoint)
	assert.Equal(t, final.ChunksDone, final.Checkpoint.FailedChunkIndex)
	assert.Less(t, final.ChunksDone, storyChunks)
	assert.FileExists(t, f.checkpointPath())
}

func TestSynthesize_ConsumerStops(t *testing.T) {
	f := newFixture(t)
	r := newRunner(t, nil)

	n := 0
	for u := range r.Synthesize(context.Background(), f.request(params(1)), nil) {
		require.False(t, u.Final())
		n++
		break
	}
	assert.Equal(t, 1, n)

	cp, err := checkpoint.Load(f.checkpointPath())
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 1, cp.FailedChunkIndex)
}

type fakeHistory struct {
	mu       sync.Mutex
	started  []history.Run
	batches  int
	outcomes []string
}

func (h *fakeHistory) Start(_ context.Context, run history.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, run)
	return nil
}

func (h *fakeHistory) Batch(context.Context, string, int, int, int, string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches++
	return nil
}

func (h *fakeHistory) Finish(_ context.Context, _ string, outcome string, _, _ int, _ string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes = append(h.outcomes, outcome)
	return nil
}

func TestSynthesize_History(t *testing.T) {
	f := newFixture(t)
	factory, err := engines.NewFactory(engines.Config{Name: "mock"})
	require.NoError(t, err)

	h := &fakeHistory{}
	r := NewRunner(Options{Factory: factory, History: h})
	defer r.Close()

	_, final := drain(t, r.Synthesize(context.Background(), f.request(params(5)), nil), nil)
	require.Equal(t, Success, final.Outcome)

	require.Len(t, h.started, 1)
	assert.Equal(t, f.input, h.started[0].Input)
	assert.NotEmpty(t, h.started[0].ID)
	assert.Equal(t, 3, h.batches)
	assert.Equal(t, []string{"success"}, h.outcomes)
}

func TestRunner_PoolReuse(t *testing.T) {
	r := newRunner(t, nil)
	ctx := context.Background()

	first, err := r.acquire(ctx, params(2))
	require.NoError(t, err)
	again, err := r.acquire(ctx, params(2))
	require.NoError(t, err)
	assert.Same(t, first, again)

	british := params(2)
	british.Voice = "bf_emma"
	other, err := r.acquire(ctx, british)
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, "b", other.Family())

	_, err = first.Invoke(ctx, 0, "closed", "af_heart", 1)
	assert.ErrorIs(t, err, tts.ErrPoolClosed)
}

func TestControl(t *testing.T) {
	c := NewControl()
	assert.Equal(t, Idle, c.State())
	assert.False(t, c.Aborted())

	c.Pause()
	assert.True(t, c.Aborted())
	assert.False(t, c.StopRequested())

	c.Stop()
	assert.True(t, c.StopRequested())

	c.Reset()
	assert.False(t, c.Aborted())
	assert.Equal(t, "idle", c.State().String())
	assert.Equal(t, "paused", Paused.String())
}
