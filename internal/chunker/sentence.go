package chunker

import (
	"errors"
	"strings"
	"unicode"
)

// ErrTokenizerUnavailable is returned by tokenizers that cannot run, for
// example when their model data is missing.
var ErrTokenizerUnavailable = errors.New("sentence tokenizer unavailable")

// Tokenizer splits a paragraph into sentences.
type Tokenizer interface {
	Sentences(paragraph string) ([]string, error)
}

var defaultTokenizer = NewRuleTokenizer()

// RuleTokenizer finds sentence boundaries by walking runes and looking at the
// words around each terminal punctuation mark.
type RuleTokenizer struct {
	abbreviations map[string]bool
}

// NewRuleTokenizer returns a tokenizer that knows common English abbreviations.
func NewRuleTokenizer() *RuleTokenizer {
	return &RuleTokenizer{abbreviations: makeAbbreviationMap()}
}

// Sentences implements Tokenizer. It never fails.
func (t *RuleTokenizer) Sentences(paragraph string) ([]string, error) {
	runes := []rune(paragraph)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}

		if !t.isBoundary(runes, i, end) {
			i = end - 1
			continue
		}

		sentences = appendSentence(sentences, runes[start:end])
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		start = end
		i = end - 1
	}

	if start < len(runes) {
		sentences = appendSentence(sentences, runes[start:])
	}

	return sentences, nil
}

// isBoundary decides whether the punctuation run starting at pos and the
// closers up to end finish a sentence.
func (t *RuleTokenizer) isBoundary(runes []rune, pos, end int) bool {
	run := runes[pos:end]

	// Full-width marks end a sentence without trailing space.
	if isFullWidthTerminal(runes[pos]) {
		return true
	}

	if end >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[end]) {
		return false
	}

	next := end
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	if next >= len(runes) {
		return true
	}

	if strings.ContainsAny(string(run), "!?") {
		return true
	}

	// Ellipsis continues the sentence.
	if len(run) > 1 && run[1] == '.' {
		return false
	}

	word := strings.ToLower(wordBefore(runes, pos))
	if t.abbreviations[word] {
		return false
	}
	// Multi-part abbreviations such as "e.g." or "U.S."
	if strings.Contains(word, ".") {
		return false
	}
	if isInitials(runes, pos, next) {
		return false
	}

	r := runes[next]
	if unicode.IsUpper(r) || unicode.IsDigit(r) {
		return true
	}
	// Scripts without case.
	if unicode.IsLetter(r) && !unicode.IsLower(r) {
		return true
	}
	return false
}

// wordBefore returns the word that ends at the punctuation mark at pos,
// without the mark itself.
func wordBefore(runes []rune, pos int) string {
	start := pos
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}
	return string(runes[start:pos])
}

// isInitials catches runs like "J. R. Tolkien" where a single capital is
// followed by another single capital and a period.
func isInitials(runes []rune, pos, next int) bool {
	if pos == 0 || !unicode.IsUpper(runes[pos-1]) {
		return false
	}
	if pos >= 2 && !unicode.IsSpace(runes[pos-2]) {
		return false
	}
	return next+1 < len(runes) && unicode.IsUpper(runes[next]) && runes[next+1] == '.'
}

func appendSentence(sentences []string, runes []rune) []string {
	s := strings.TrimSpace(string(runes))
	if s == "" {
		return sentences
	}
	return append(sentences, s)
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return isFullWidthTerminal(r)
}

func isFullWidthTerminal(r rune) bool {
	switch r {
	case '。', '！', '？', '।':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』':
		return true
	}
	return false
}

// makeAbbreviationMap creates a map of common abbreviations.
func makeAbbreviationMap() map[string]bool {
	abbrevs := []string{
		"mr", "mrs", "ms", "dr", "prof", "sr", "jr", "st", "rev", "gen", "col", "capt", "lt", "sgt",
		"inc", "ltd", "co", "corp", "llc",
		"etc", "vs", "cf", "al", "approx", "dept", "est", "fig", "no", "vol", "pp",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec",
		"mon", "tue", "wed", "thu", "fri", "sat", "sun",
		"rd", "ave", "blvd", "ln", "ct", "mt",
		"ft", "lbs", "oz", "kg", "km", "cm", "mm", "mi", "yd",
		"hr", "hrs", "min", "mins", "sec", "secs",
	}

	m := make(map[string]bool, len(abbrevs))
	for _, abbrev := range abbrevs {
		m[abbrev] = true
	}
	return m
}
