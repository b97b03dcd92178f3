package checkpoint

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager owns the checkpoint file for the lifetime of one run.
type Manager struct {
	path string

	mu        sync.Mutex
	pending   *Checkpoint // checkpoint the run resumed from, until superseded
	confirmed int
	now       func() time.Time
}

// NewManager starts tracking a run at start. resumed is the checkpoint the
// run was resumed from, or nil for a fresh run.
func NewManager(path string, start int, resumed *Checkpoint) *Manager {
	return &Manager{
		path:      path,
		pending:   resumed,
		confirmed: start,
		now:       time.Now,
	}
}

// Path returns the checkpoint file path.
func (m *Manager) Path() string {
	return m.path
}

// Confirm records that chunk idx has been durably written. Once idx reaches
// the index of the resumed checkpoint, the file is deleted.
func (m *Manager) Confirm(idx int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx+1 > m.confirmed {
		m.confirmed = idx + 1
	}
	if m.pending == nil || idx < m.pending.FailedChunkIndex {
		return nil
	}

	if err := Clear(m.path); err != nil {
		return err
	}
	log.Debug("checkpoint superseded", "path", m.path, "index", idx)
	m.pending = nil
	return nil
}

// Confirmed returns the number of chunks durably written.
func (m *Manager) Confirmed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}

// Record writes a checkpoint at the confirmed count. tmpl supplies the run
// parameters; its index and timestamp are overwritten.
func (m *Manager) Record(tmpl Checkpoint, errMsg string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := tmpl
	cp.FailedChunkIndex = m.confirmed
	cp.ErrorMessage = errMsg
	cp.Timestamp = Unix(m.now())

	if err := Save(m.path, &cp); err != nil {
		return nil, err
	}
	m.pending = nil
	log.Info("checkpoint saved", "path", m.path, "index", cp.FailedChunkIndex)
	return &cp, nil
}

// Discard deletes any checkpoint for this run.
func (m *Manager) Discard() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = nil
	return Clear(m.path)
}
