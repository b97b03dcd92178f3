// Package checkpoint persists the resume point of an interrupted narration
// as a small JSON file next to the input.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Suffix is appended to the input path to form the checkpoint path.
const Suffix = ".lock"

// ErrCorrupt is returned by Load when the file exists but cannot be decoded.
var ErrCorrupt = errors.New("checkpoint file is corrupt")

// Checkpoint records where an aborted run should resume.
// FailedChunkIndex is the count of chunks durably written, which is also the
// index of the first chunk still to do.
type Checkpoint struct {
	FailedChunkIndex int     `json:"failed_chunk_index"`
	ErrorMessage     string  `json:"error_message"`
	Voice            string  `json:"voice"`
	Speed            float64 `json:"speed"`
	SampleRate       int     `json:"sample_rate"`
	Timestamp        float64 `json:"timestamp"`

	MaxChunkChars        int      `json:"max_chunk_chars,omitempty"`
	SilenceThreshold     *float64 `json:"silence_threshold,omitempty"`
	SilenceMarginSamples *int     `json:"silence_margin_samples,omitempty"`
	BatchWidth           int      `json:"batch_width,omitempty"`
	TextSHA256           string   `json:"text_sha256,omitempty"`
}

// Time returns the timestamp as a time.Time.
func (c *Checkpoint) Time() time.Time {
	sec := int64(c.Timestamp)
	nsec := int64((c.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Unix converts t to the float seconds stored in Timestamp.
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// PathFor returns the checkpoint path for a run. Text read from a file keys
// on the input path; text without a file keys on the output path.
func PathFor(inputPath, outputPath string) string {
	if inputPath != "" && inputPath != "-" {
		return inputPath + Suffix
	}
	return outputPath + Suffix
}

// Load reads the checkpoint at path. A missing file yields (nil, nil).
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if cp.FailedChunkIndex < 0 {
		return nil, fmt.Errorf("%w: %s: negative chunk index %d", ErrCorrupt, path, cp.FailedChunkIndex)
	}
	return &cp, nil
}

// Save writes cp to path atomically.
func Save(path string, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Clear removes the checkpoint at path. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	return nil
}
