package narration

import (
	"github.com/dgnsrekt/narrator/internal/checkpoint"
	"github.com/dgnsrekt/narrator/internal/pipeline"
	"github.com/dgnsrekt/narrator/internal/progress"
)

// Outcome is how a run ended.
type Outcome int

const (
	// Running marks progress updates.
	Running Outcome = iota
	Success
	Paused
	Stopped
	Failed
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Success:
		return "success"
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

// Request describes one narration.
type Request struct {
	Text string

	// InputPath keys the checkpoint. Empty or "-" means the text had no
	// file and the checkpoint sits next to the output instead.
	InputPath  string
	OutputPath string
	Params     pipeline.Params

	// Resume continues from an existing checkpoint. When false any
	// checkpoint is discarded.
	Resume bool
}

// Update is yielded by Runner.Synthesize. Progress is set on per-batch
// updates; the last update has Progress nil and a terminal Outcome.
type Update struct {
	Progress *progress.Event

	Outcome     Outcome
	OutputPath  string
	ChunksDone  int
	ChunksTotal int
	Resumed     bool

	// Checkpoint is the file written on Paused or Failed, if any.
	Checkpoint *checkpoint.Checkpoint
	Err        error
}

// Final reports whether u is the terminal update.
func (u Update) Final() bool {
	return u.Progress == nil && u.Outcome != Running
}
