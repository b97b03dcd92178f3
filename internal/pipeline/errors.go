package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const leadLen = 50

// ChunkError reports a chunk that could not be synthesized.
type ChunkError struct {
	Index    int
	Lead     string // first characters of the chunk text
	Attempts int
	Cause    error
}

func newChunkError(index int, text string, attempts int, cause error) *ChunkError {
	lead := text
	if utf8.RuneCountInString(lead) > leadLen {
		lead = string([]rune(lead)[:leadLen])
	}
	return &ChunkError{Index: index, Lead: strings.TrimSpace(lead), Attempts: attempts, Cause: cause}
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("failed to process chunk after %d retries: %s", e.Attempts, e.Lead)
}

func (e *ChunkError) Unwrap() error {
	return e.Cause
}
