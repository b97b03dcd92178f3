package queue

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/narration"
	"github.com/dgnsrekt/narrator/internal/pipeline"
	"github.com/dgnsrekt/narrator/utils"
)

var (
	// ErrDuplicate is returned when an item with the same output is queued twice
	ErrDuplicate = errors.New("output already queued")

	// ErrEmpty is returned by Run on a queue without items
	ErrEmpty = errors.New("queue is empty")

	// ErrBusy is returned when the queue is modified or run while running
	ErrBusy = errors.New("queue is running")
)

// Status is the state of one item.
type Status int

const (
	Pending Status = iota
	Processing
	Completed
	Paused
	Stopped
	Failed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Processing:
		return "processing"
	case Completed:
		return "completed"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func statusFor(o narration.Outcome) Status {
	switch o {
	case narration.Success:
		return Completed
	case narration.Paused:
		return Paused
	case narration.Stopped:
		return Stopped
	default:
		return Failed
	}
}

// Item is one input and where its audio goes.
type Item struct {
	Input  string
	Output string
	Status Status
	Err    error
}

// Synthesizer is the part of narration.Runner the queue uses.
type Synthesizer interface {
	Synthesize(ctx context.Context, req narration.Request, ctl *narration.Control) iter.Seq[narration.Update]
}

// Stats summarizes a run of the queue.
type Stats struct {
	Completed int
	Remaining int
	Elapsed   time.Duration
	Outcome   narration.Outcome
}

// Options configures Run.
type Options struct {
	Params pipeline.Params

	// Load reads an input into text. Nil reads the file as is.
	Load func(path string) (string, error)

	// OnUpdate is called for every update of every item, optional.
	OnUpdate func(index int, item Item, u narration.Update)
}

// Queue holds items in the order they will be converted.
type Queue struct {
	mu      sync.RWMutex
	items   []Item
	running bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// DefaultOutput returns input with its extension replaced by ".wav".
func DefaultOutput(input string) string {
	return utils.WithExt(input, ".wav")
}

// ParseSpec splits an "IN[:OUT]" argument. A missing output uses DefaultOutput.
func ParseSpec(spec string) (input, output string) {
	// A drive letter is not a separator.
	if i := strings.LastIndex(spec, ":"); i > 1 || (i == 1 && len(spec) > 2 && spec[2] != '\\' && spec[2] != '/') {
		return spec[:i], spec[i+1:]
	}
	return spec, DefaultOutput(spec)
}

// Add appends an item. An empty output uses DefaultOutput.
func (q *Queue) Add(input, output string) error {
	if input == "" {
		return errors.New("input path is required")
	}
	if output == "" {
		output = DefaultOutput(input)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrBusy
	}
	for _, it := range q.items {
		if it.Output == output {
			return fmt.Errorf("%w: %s", ErrDuplicate, output)
		}
	}
	q.items = append(q.items, Item{Input: input, Output: output})
	return nil
}

// Remove deletes the item at index i.
func (q *Queue) Remove(i int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrBusy
	}
	if i < 0 || i >= len(q.items) {
		return fmt.Errorf("no item at index %d", i)
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	return nil
}

// Clear removes every item.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrBusy
	}
	q.items = nil
	return nil
}

// Len returns the number of items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Items returns a copy of the items.
func (q *Queue) Items() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]Item(nil), q.items...)
}

func (q *Queue) setStatus(i int, s Status, err error) Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[i].Status = s
	q.items[i].Err = err
	return q.items[i]
}

// Run converts the pending items in order, always resuming from existing
// checkpoints. It stops at the first item that does not complete and after
// any item during which ctl asked to pause or stop. The returned error is the
// failure of the item that stopped the queue, if any.
func (q *Queue) Run(ctx context.Context, s Synthesizer, ctl *narration.Control, opts Options) (Stats, error) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return Stats{}, ErrBusy
	}
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Stats{}, ErrEmpty
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	if ctl == nil {
		ctl = narration.NewControl()
	}
	load := opts.Load
	if load == nil {
		load = readFile
	}

	started := time.Now()
	stats := Stats{Outcome: narration.Success}
	items := q.Items()

	for i, it := range items {
		if it.Status == Completed {
			continue
		}

		item := q.setStatus(i, Processing, nil)
		log.Info("processing queue item", "item", i+1, "of", len(items), "input", it.Input)

		text, err := load(it.Input)
		if err != nil {
			item = q.setStatus(i, Failed, err)
			if opts.OnUpdate != nil {
				opts.OnUpdate(i, item, narration.Update{Outcome: narration.Failed, OutputPath: it.Output, Err: err})
			}
			stats.Outcome = narration.Failed
			return q.finish(stats, started), fmt.Errorf("queue item %d: %w", i+1, err)
		}

		req := narration.Request{
			Text:       text,
			InputPath:  it.Input,
			OutputPath: it.Output,
			Params:     opts.Params,
			Resume:     true,
		}

		final := narration.Update{Outcome: narration.Paused, OutputPath: it.Output}
		for u := range s.Synthesize(ctx, req, ctl) {
			if u.Final() {
				final = u
				continue
			}
			if opts.OnUpdate != nil {
				opts.OnUpdate(i, item, u)
			}
		}

		item = q.setStatus(i, statusFor(final.Outcome), final.Err)
		if opts.OnUpdate != nil {
			opts.OnUpdate(i, item, final)
		}

		if final.Outcome != narration.Success {
			log.Info("queue halted", "item", i+1, "status", item.Status)
			stats.Outcome = final.Outcome
			if final.Outcome == narration.Failed {
				return q.finish(stats, started), fmt.Errorf("queue item %d: %w", i+1, final.Err)
			}
			return q.finish(stats, started), nil
		}

		if ctl.Aborted() {
			log.Info("queue processing aborted by user", "item", i+1)
			stats.Outcome = narration.Paused
			if ctl.StopRequested() {
				stats.Outcome = narration.Stopped
			}
			return q.finish(stats, started), nil
		}
	}

	return q.finish(stats, started), nil
}

func (q *Queue) finish(stats Stats, started time.Time) Stats {
	stats.Elapsed = time.Since(started)
	for _, it := range q.Items() {
		if it.Status == Completed {
			stats.Completed++
		} else {
			stats.Remaining++
		}
	}
	return stats
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read input: %w", err)
	}
	return string(data), nil
}
