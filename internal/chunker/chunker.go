// Package chunker splits long text into short, speakable units.
//
// The output is a flat sequence of speech chunks and pause markers. Every
// sentence is followed by one pause marker and every paragraph by an extra
// one, so paragraph boundaries carry two consecutive markers. Segmentation is
// deterministic: the same text and limit always produce the same sequence,
// which is what makes resuming a half-written output file safe.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
)

// DefaultMaxChars is the longest chunk sent to an engine in one call.
const DefaultMaxChars = 200

// PauseMarker is the text carried by pause chunks.
const PauseMarker = "SENTENCE_END_PAUSE_MARKER"

// Kind tells speech apart from pause markers.
type Kind int

const (
	// Speech is text to be synthesized.
	Speech Kind = iota
	// Pause is a fixed-length silence between sentences.
	Pause
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Speech:
		return "speech"
	case Pause:
		return "pause"
	default:
		return "unknown"
	}
}

// Chunk is one unit of work for the synthesis pipeline.
type Chunk struct {
	Kind Kind
	Text string
}

// SpeechChunk returns a speech chunk for text.
func SpeechChunk(text string) Chunk {
	return Chunk{Kind: Speech, Text: text}
}

// PauseChunk returns a pause marker.
func PauseChunk() Chunk {
	return Chunk{Kind: Pause, Text: PauseMarker}
}

// IsPause reports whether c is a pause marker.
func (c Chunk) IsPause() bool {
	return c.Kind == Pause
}

// Options tunes segmentation.
type Options struct {
	// MaxChars bounds the rune length of speech chunks. Zero means DefaultMaxChars.
	MaxChars int

	// Tokenizer splits paragraphs into sentences. Nil means the built-in rule tokenizer.
	Tokenizer Tokenizer
}

// Result is the outcome of SegmentWith.
type Result struct {
	Chunks []Chunk

	// Degraded is set when the tokenizer was unavailable and sentences were
	// split on ". " instead.
	Degraded bool
}

// Segment splits text into chunks no longer than maxChars, except for single
// words that are longer on their own.
func Segment(text string, maxChars int) []Chunk {
	return SegmentWith(text, Options{MaxChars: maxChars}).Chunks
}

// SegmentWith is Segment with a configurable tokenizer.
func SegmentWith(text string, opts Options) Result {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = defaultTokenizer
	}

	var res Result
	for _, paragraph := range strings.Split(Normalize(text), "\n") {
		if strings.TrimSpace(paragraph) == "" {
			continue
		}

		sentences, err := tok.Sentences(paragraph)
		if err != nil {
			if !res.Degraded {
				log.Warn("Sentence tokenizer not available, sentence splitting quality will be degraded", "err", err)
			}
			res.Degraded = true
			sentences = strings.Split(paragraph, ". ")
		}

		for _, sentence := range sentences {
			sentence = collapseSpace(sentence)
			if sentence == "" {
				continue
			}
			for _, part := range SplitLong(sentence, opts.MaxChars) {
				res.Chunks = append(res.Chunks, SpeechChunk(part))
			}
			res.Chunks = append(res.Chunks, PauseChunk())
		}
		res.Chunks = append(res.Chunks, PauseChunk())
	}

	return res
}

// SpeechCount returns the number of speech chunks in chunks.
func SpeechCount(chunks []Chunk) int {
	n := 0
	for _, c := range chunks {
		if !c.IsPause() {
			n++
		}
	}
	return n
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
