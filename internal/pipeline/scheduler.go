package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/chunker"
	"github.com/dgnsrekt/narrator/internal/progress"
	"github.com/dgnsrekt/narrator/internal/tts"
	"golang.org/x/sync/errgroup"
)

// Invoker is the part of tts.Pool the scheduler uses.
type Invoker interface {
	Invoke(ctx context.Context, handle int, text, voice string, speed float64) ([]byte, error)
	SampleRate() int
}

// Sink receives trimmed audio in chunk order.
type Sink interface {
	Append(samples []float32) error
}

// Confirmer is told about every chunk once its audio is durably written.
type Confirmer interface {
	Confirm(index int) error
}

// Scheduler runs chunks through Pool in batches of Params.BatchWidth.
type Scheduler struct {
	Pool        Invoker
	Params      Params
	Retry       RetryPolicy
	Sink        Sink
	Checkpoint  Confirmer   // optional
	ShouldAbort func() bool // checked after every batch, optional
	Clock       func() time.Time
}

type chunkResult struct {
	index   int
	samples []float32
}

// Run processes chunks from start and yields one event per batch. The
// sequence ends after the last batch, after ShouldAbort reports true, or with
// a single non-nil error. It is not restartable.
func (s *Scheduler) Run(ctx context.Context, chunks []chunker.Chunk, start int) iter.Seq2[progress.Event, error] {
	return func(yield func(progress.Event, error) bool) {
		width := max(s.Params.BatchWidth, 1)
		tracker := progress.NewTracker(len(chunks), width, s.Clock)

		for cursor := max(start, 0); cursor < len(chunks); cursor += width {
			end := min(cursor+width, len(chunks))
			batch := chunks[cursor:end]

			results, err := s.synthesize(ctx, batch, cursor)
			if err != nil {
				yield(progress.Event{}, err)
				return
			}

			for i, samples := range results {
				if err := s.Sink.Append(samples); err != nil {
					yield(progress.Event{}, fmt.Errorf("failed to write chunk %d: %w", cursor+i, err))
					return
				}
				if s.Checkpoint != nil {
					if err := s.Checkpoint.Confirm(cursor + i); err != nil {
						log.Warn("could not update checkpoint", "err", err)
					}
				}
			}

			if s.ShouldAbort != nil && s.ShouldAbort() {
				log.Debug("aborting after batch", "next", end)
				return
			}

			if !yield(tracker.Observe(cursor, end, speechTexts(batch)), nil) {
				return
			}
		}
	}
}

// synthesize fans the batch out and returns the samples in batch order.
// It returns only after every worker has finished.
func (s *Scheduler) synthesize(ctx context.Context, batch []chunker.Chunk, offset int) ([][]float32, error) {
	out := make(chan chunkResult, len(batch))
	g, gctx := errgroup.WithContext(ctx)

	for i, c := range batch {
		g.Go(func() error {
			samples, err := s.process(gctx, i, offset+i, c)
			if err != nil {
				return err
			}
			out <- chunkResult{index: i, samples: samples}
			return nil
		})
	}

	err := g.Wait()
	close(out)
	if err != nil {
		return nil, err
	}

	results := make([][]float32, len(batch))
	for r := range out {
		results[r.index] = r.samples
	}
	return results, nil
}

// process turns one chunk into trimmed samples at the run's sample rate.
func (s *Scheduler) process(ctx context.Context, handle, index int, c chunker.Chunk) ([]float32, error) {
	p := s.Params
	if c.IsPause() {
		return audio.Silence(p.SampleRate, audio.PauseDuration), nil
	}

	pcm, attempts, err := s.invoke(ctx, handle, index, c.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chunk %d: %w", index, ctx.Err())
		}
		return nil, newChunkError(index, c.Text, attempts, err)
	}

	samples := audio.DecodePCM16(pcm)
	samples = audio.Resample(samples, s.Pool.SampleRate(), p.SampleRate)
	return audio.Trim(samples, p.SilenceThreshold, p.SilenceMarginSamples), nil
}

// invoke calls the engine with a fixed delay between attempts. Fatal engine
// errors are not retried.
func (s *Scheduler) invoke(ctx context.Context, handle, index int, text string) ([]byte, int, error) {
	policy := s.Retry
	if policy.Attempts < 1 {
		policy = DefaultRetry()
	}

	attempts := 0
	op := func() ([]byte, error) {
		attempts++
		pcm, err := s.Pool.Invoke(ctx, handle, text, s.Params.Voice, s.Params.Speed)
		if err != nil {
			if tts.IsFatal(err) || errors.Is(err, tts.ErrPoolClosed) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return pcm, nil
	}

	pcm, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Delay)),
		backoff.WithMaxTries(uint(policy.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("chunk synthesis failed, retrying", "chunk", index, "attempt", attempts, "err", err)
		}),
	)
	return pcm, attempts, err
}

func speechTexts(batch []chunker.Chunk) []string {
	texts := make([]string, 0, len(batch))
	for _, c := range batch {
		if !c.IsPause() {
			texts = append(texts, c.Text)
		}
	}
	return texts
}
