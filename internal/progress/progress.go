// Package progress turns batch completions into human readable progress
// events with an elapsed/remaining projection.
package progress

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// SummaryLen is how many characters of a batch's text a message quotes.
const SummaryLen = 50

// Event describes one completed batch.
type Event struct {
	Message      string
	ETAMessage   string
	ChunksDone   int
	ChunksTotal  int
	Batch        int
	TotalBatches int
	Elapsed      time.Duration
	Remaining    time.Duration
}

// Fraction returns the share of chunks done, between 0 and 1.
func (e Event) Fraction() float64 {
	if e.ChunksTotal == 0 {
		return 1
	}
	return float64(e.ChunksDone) / float64(e.ChunksTotal)
}

// Tracker projects remaining time from the pace of the batches completed in
// the current run. It is not safe for concurrent use.
type Tracker struct {
	total     int
	width     int
	start     time.Time
	completed int
	now       func() time.Time
}

// NewTracker starts timing a run over total chunks in batches of width.
// now may be nil.
func NewTracker(total, width int, now func() time.Time) *Tracker {
	if width < 1 {
		width = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{total: total, width: width, start: now(), now: now}
}

// TotalBatches returns ceil(total / width).
func (t *Tracker) TotalBatches() int {
	return (t.total + t.width - 1) / t.width
}

// Observe records the batch covering chunks [start, end) whose speech texts
// are texts, and returns its event.
func (t *Tracker) Observe(start, end int, texts []string) Event {
	t.completed++

	batch := start/t.width + 1
	totalBatches := t.TotalBatches()
	elapsed := t.now().Sub(t.start)

	var remaining time.Duration
	if left := totalBatches - batch; left > 0 {
		remaining = elapsed / time.Duration(t.completed) * time.Duration(left)
	}

	if end > t.total {
		end = t.total
	}

	return Event{
		Message:      fmt.Sprintf("Completed batch %d/%d: %s", batch, totalBatches, Summary(texts)),
		ETAMessage:   fmt.Sprintf("Elapsed: %s | Remaining: %s | Batch %d/%d", Clock(elapsed), Clock(remaining), batch, totalBatches),
		ChunksDone:   end,
		ChunksTotal:  t.total,
		Batch:        batch,
		TotalBatches: totalBatches,
		Elapsed:      elapsed,
		Remaining:    remaining,
	}
}

// Summary joins texts and cuts the result to SummaryLen characters, adding
// "..." when something was cut.
func Summary(texts []string) string {
	var b strings.Builder
	for _, s := range texts {
		b.WriteString(s)
		b.WriteByte(' ')
	}
	joined := b.String()

	if utf8.RuneCountInString(joined) <= SummaryLen {
		return strings.TrimSpace(joined)
	}
	return strings.TrimSpace(string([]rune(joined)[:SummaryLen])) + "..."
}

// Clock formats d as MM:SS. Minutes grow past 59 rather than rolling into hours.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
