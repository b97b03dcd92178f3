package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level identifies the tier an entry was served from.
type Level int

const (
	LevelMemory Level = iota
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds per-tier counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

func (s *Stats) finish() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Config holds configuration for a Manager.
type Config struct {
	MemoryCapacity   int64         // Bytes held in the LRU
	DiskCapacity     int64         // Bytes held on disk, compressed
	Dir              string        // Directory for cache files
	CompressionLevel int           // Zstd level, 0 disables compression
	TTL              time.Duration // Disk entries older than this are pruned on open
}

// DefaultConfig returns the default configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,
		DiskCapacity:     512 * 1024 * 1024,
		Dir:              dir,
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
	}
}

// Key identifies one synthesized chunk.
type Key struct {
	Engine string
	Family string
	Voice  string
	Speed  float64
	Text   string
}

// String returns a stable hex digest of the key.
func (k Key) String() string {
	h := sha256.New()
	for _, part := range []string{k.Engine, k.Family, k.Voice, strconv.FormatFloat(k.Speed, 'f', 3, 64), k.Text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:20])
}
