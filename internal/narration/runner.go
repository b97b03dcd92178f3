// Package narration drives one text through chunking, synthesis, and the
// output file, and decides whether a run starts fresh or resumes from its
// checkpoint.
package narration

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/checkpoint"
	"github.com/dgnsrekt/narrator/internal/chunker"
	"github.com/dgnsrekt/narrator/internal/history"
	"github.com/dgnsrekt/narrator/internal/pipeline"
	"github.com/dgnsrekt/narrator/internal/progress"
	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/internal/voices"
	"github.com/dgnsrekt/narrator/internal/wav"
	"github.com/google/uuid"
)

// ErrNoOutput is returned when a request has no output path.
var ErrNoOutput = errors.New("output path is required")

// History records runs. *history.Store implements it.
type History interface {
	Start(ctx context.Context, run history.Run) error
	Batch(ctx context.Context, runID string, batch, chunksDone, chunksTotal int, message string) error
	Finish(ctx context.Context, runID, outcome string, chunksDone, chunksTotal int, errMsg string) error
}

// Options configures a Runner.
type Options struct {
	Factory   tts.Factory
	Voices    *voices.Table // nil means voices.Default()
	Retry     pipeline.RetryPolicy
	History   History           // optional
	Tokenizer chunker.Tokenizer // nil means the built-in tokenizer
	Clock     func() time.Time
}

// Runner owns the engine pool across runs. The pool is rebuilt when the
// voice family or the pool size changes. Runs on one Runner must not overlap.
type Runner struct {
	opts   Options
	voices *voices.Table

	mu   sync.Mutex
	pool *tts.Pool

	wrapSink func(pipeline.Sink) pipeline.Sink // tests only
}

// NewRunner returns a runner. It does not build engines until the first run.
func NewRunner(opts Options) *Runner {
	if opts.Voices == nil {
		opts.Voices = voices.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Runner{opts: opts, voices: opts.Voices}
}

// Close releases the engine pool.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool == nil {
		return nil
	}
	err := r.pool.Close()
	r.pool = nil
	return err
}

func (r *Runner) acquire(ctx context.Context, p pipeline.Params) (*tts.Pool, error) {
	if r.opts.Factory == nil {
		return nil, tts.ErrEngineNotAvailable
	}
	v, err := r.voices.Lookup(p.Voice)
	if err != nil {
		return nil, err
	}
	size := p.Pool()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil {
		if r.pool.Family() == v.Family && r.pool.Len() == size {
			return r.pool, nil
		}
		log.Debug("rebuilding engine pool", "family", v.Family, "size", size)
		if err := r.pool.Close(); err != nil {
			log.Warn("failed to close engine pool", "err", err)
		}
		r.pool = nil
	}

	pool, err := tts.NewPool(ctx, size, v.Family, r.opts.Factory)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return pool, nil
}

// Synthesize narrates req into req.OutputPath. It yields an update after
// every batch and ends with exactly one terminal update, unless the caller
// stops iterating early, which is handled like a pause. ctl may be nil.
func (r *Runner) Synthesize(ctx context.Context, req Request, ctl *Control) iter.Seq[Update] {
	return func(yield func(Update) bool) {
		if ctl == nil {
			ctl = NewControl()
		}
		ctl.set(Processing)

		rec := r.startRecord(ctx, req)
		final, deliver := r.run(ctx, req, ctl, rec, yield)
		ctl.finish(final.Outcome)
		rec.finish(final)

		if deliver {
			yield(final)
		}
	}
}

func (r *Runner) run(ctx context.Context, req Request, ctl *Control, rec *record, yield func(Update) bool) (Update, bool) {
	fail := func(err error) (Update, bool) {
		log.Error("narration failed", "output", req.OutputPath, "err", err)
		return Update{Outcome: Failed, OutputPath: req.OutputPath, Err: err}, true
	}

	if strings.TrimSpace(req.Text) == "" {
		return fail(tts.ErrEmptyText)
	}
	if req.OutputPath == "" {
		return fail(ErrNoOutput)
	}
	if err := req.Params.Validate(); err != nil {
		return fail(err)
	}
	if _, err := r.voices.Lookup(req.Params.Voice); err != nil {
		return fail(err)
	}

	cpPath := checkpoint.PathFor(req.InputPath, req.OutputPath)
	sum := textSum(req.Text)
	pl := r.planRun(req, cpPath, sum)
	if chunker.SpeechCount(pl.chunks) == 0 {
		return fail(tts.ErrEmptyText)
	}

	pool, err := r.acquire(ctx, pl.params)
	if err != nil {
		return fail(err)
	}
	if pl.discard {
		if err := checkpoint.Clear(cpPath); err != nil {
			log.Warn("failed to remove stale checkpoint", "path", cpPath, "err", err)
		}
	}

	sink, pool, err := r.openSink(ctx, req, cpPath, &pl, pool)
	if err != nil {
		return fail(err)
	}

	rec.chunks(len(pl.chunks))
	mgr := checkpoint.NewManager(cpPath, pl.start, pl.resumed)
	var out pipeline.Sink = sink
	if r.wrapSink != nil {
		out = r.wrapSink(out)
	}
	sched := &pipeline.Scheduler{
		Pool:        pool,
		Params:      pl.params,
		Retry:       r.opts.Retry,
		Sink:        out,
		Checkpoint:  mgr,
		ShouldAbort: ctl.Aborted,
		Clock:       r.opts.Clock,
	}

	var runErr error
	consumerGone := false
	for ev, err := range sched.Run(ctx, pl.chunks, pl.start) {
		if err != nil {
			runErr = err
			break
		}
		rec.batch(ev)
		u := Update{
			Progress:    &ev,
			OutputPath:  req.OutputPath,
			ChunksDone:  ev.ChunksDone,
			ChunksTotal: ev.ChunksTotal,
			Resumed:     pl.resumed != nil,
		}
		if !yield(u) {
			consumerGone = true
			break
		}
	}

	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to finalize output: %w", err)
	}

	final := Update{
		OutputPath:  req.OutputPath,
		ChunksDone:  mgr.Confirmed(),
		ChunksTotal: len(pl.chunks),
		Resumed:     pl.resumed != nil,
	}
	tmpl := template(pl.params, sum)

	switch {
	case runErr != nil && ctx.Err() != nil:
		log.Info("narration interrupted", "output", req.OutputPath, "done", final.ChunksDone)
		final.Outcome = Paused
		final.Err = ctx.Err()
		final.Checkpoint = saveCheckpoint(mgr, tmpl, "interrupted: "+ctx.Err().Error())
	case runErr != nil:
		log.Error("narration failed", "output", req.OutputPath, "done", final.ChunksDone, "err", runErr)
		final.Outcome = Failed
		final.Err = runErr
		final.Checkpoint = saveCheckpoint(mgr, tmpl, runErr.Error())
	case final.ChunksDone >= len(pl.chunks):
		final.Outcome = Success
		dropCheckpoint(mgr)
	case ctl.StopRequested():
		log.Info("narration stopped", "output", req.OutputPath, "done", final.ChunksDone)
		final.Outcome = Stopped
		dropCheckpoint(mgr)
	default:
		log.Info("narration paused", "output", req.OutputPath, "done", final.ChunksDone)
		final.Outcome = Paused
		final.Checkpoint = saveCheckpoint(mgr, tmpl, "")
	}

	return final, !consumerGone
}

// openSink opens the output for appending when resuming, and falls back to a
// fresh file when the existing one cannot be continued.
func (r *Runner) openSink(ctx context.Context, req Request, cpPath string, pl *plan, pool *tts.Pool) (*wav.Writer, *tts.Pool, error) {
	if pl.start > 0 {
		w, err := wav.Resume(req.OutputPath, pl.params.SampleRate)
		if err == nil {
			log.Debug("appending to output", "path", req.OutputPath, "duration", w.Duration())
			return w, pool, nil
		}

		log.Warn("cannot continue existing output, starting fresh", "path", req.OutputPath, "err", err)
		if err := checkpoint.Clear(cpPath); err != nil {
			log.Warn("failed to remove stale checkpoint", "path", cpPath, "err", err)
		}
		*pl = r.freshPlan(req)
		if pool, err = r.acquire(ctx, pl.params); err != nil {
			return nil, nil, err
		}
	}

	w, err := wav.Create(req.OutputPath, pl.params.SampleRate)
	if err != nil {
		return nil, nil, err
	}
	return w, pool, nil
}

func saveCheckpoint(mgr *checkpoint.Manager, tmpl checkpoint.Checkpoint, msg string) *checkpoint.Checkpoint {
	cp, err := mgr.Record(tmpl, msg)
	if err != nil {
		log.Error("failed to save checkpoint", "path", mgr.Path(), "err", err)
		return nil
	}
	return cp
}

func dropCheckpoint(mgr *checkpoint.Manager) {
	if err := mgr.Discard(); err != nil {
		log.Warn("failed to remove checkpoint", "path", mgr.Path(), "err", err)
	}
}

// record mirrors one run into History. Failures are logged, never returned.
type record struct {
	h     History
	ctx   context.Context
	id    string
	total int
}

func (r *Runner) startRecord(ctx context.Context, req Request) *record {
	if r.opts.History == nil {
		return &record{}
	}
	rec := &record{h: r.opts.History, ctx: context.WithoutCancel(ctx), id: uuid.NewString()}
	err := rec.h.Start(rec.ctx, history.Run{
		ID:        rec.id,
		Input:     req.InputPath,
		Output:    req.OutputPath,
		Voice:     req.Params.Voice,
		StartedAt: r.opts.Clock(),
		Outcome:   Running.String(),
	})
	if err != nil {
		log.Warn("failed to record run", "err", err)
		rec.h = nil
	}
	return rec
}

func (rec *record) chunks(n int) {
	rec.total = n
}

func (rec *record) batch(ev progress.Event) {
	if rec.h == nil {
		return
	}
	if err := rec.h.Batch(rec.ctx, rec.id, ev.Batch, ev.ChunksDone, ev.ChunksTotal, ev.Message); err != nil {
		log.Debug("failed to record batch", "err", err)
	}
}

func (rec *record) finish(u Update) {
	if rec.h == nil {
		return
	}
	var msg string
	if u.Err != nil {
		msg = u.Err.Error()
	}
	total := u.ChunksTotal
	if total == 0 {
		total = rec.total
	}
	if err := rec.h.Finish(rec.ctx, rec.id, u.Outcome.String(), u.ChunksDone, total, msg); err != nil {
		log.Debug("failed to record run outcome", "err", err)
	}
}
