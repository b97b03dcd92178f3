package narration

import "sync"

// State is the lifecycle state of a Control.
type State int

const (
	Idle State = iota
	Processing
	PausedState
	StoppedState
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case PausedState:
		return "paused"
	case StoppedState:
		return "stopped"
	default:
		return "unknown"
	}
}

// Control lets another goroutine ask a running narration to pause or stop.
// Requests take effect after the batch in flight has been written.
type Control struct {
	mu    sync.Mutex
	state State
	pause bool
	stop  bool
}

// NewControl returns an idle control.
func NewControl() *Control {
	return &Control{}
}

// Pause asks the run to stop after the current batch and keep a checkpoint.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pause = true
}

// Stop asks the run to stop after the current batch and drop the checkpoint.
// It wins over Pause.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop = true
}

// Aborted reports whether Pause or Stop has been requested.
func (c *Control) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pause || c.stop
}

// StopRequested reports whether Stop has been requested.
func (c *Control) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}

// State returns the current state.
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset clears pending requests and returns the control to Idle.
func (c *Control) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.pause = false
	c.stop = false
}

func (c *Control) set(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Control) finish(o Outcome) {
	switch o {
	case Paused:
		c.set(PausedState)
	case Stopped:
		c.set(StoppedState)
	default:
		c.set(Idle)
	}
}
