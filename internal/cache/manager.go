package cache

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Manager layers the memory LRU over the disk cache. Disk hits are promoted
// to memory.
type Manager struct {
	memory *MemoryCache
	disk   *DiskCache
}

// NewManager opens the cache described by cfg and prunes expired entries.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}

	disk, err := NewDiskCache(cfg.Dir, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	if cfg.TTL > 0 {
		if n := disk.RemoveOlderThan(time.Now().Add(-cfg.TTL)); n > 0 {
			log.Debug("pruned expired cache entries", "count", n)
		}
	}

	return &Manager{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
	}, nil
}

// Get looks up key in memory, then on disk.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, LevelMemory, true
	}
	if data, ok := m.disk.Get(key); ok {
		_ = m.memory.Put(key, data)
		return data, LevelDisk, true
	}
	return nil, 0, false
}

// Put stores value in both tiers. A value too large for one tier is still
// stored in the other.
func (m *Manager) Put(key string, value []byte) error {
	memErr := m.memory.Put(key, value)
	diskErr := m.disk.Put(key, value)
	if diskErr != nil && diskErr != ErrItemTooLarge {
		return diskErr
	}
	if memErr == ErrItemTooLarge && diskErr == ErrItemTooLarge {
		return ErrItemTooLarge
	}
	return nil
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	m.memory.Clear()
	return m.disk.Clear()
}

// Stats returns per-tier statistics.
func (m *Manager) Stats() (memory, disk Stats) {
	return m.memory.Stats(), m.disk.Stats()
}

// Close persists the disk index.
func (m *Manager) Close() error {
	return m.disk.Close()
}
