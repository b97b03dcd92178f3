package chunker

import "strings"

// breakpoints are tried in order; the first one present in a clause wins.
var breakpoints = []string{";", ":", "–", "—", ",", " and ", " or "}

// SplitLong shortens a sentence that exceeds maxChars. It first splits at
// clause separators, keeping the separator on the left part, and falls back
// to packing whole words greedily.
func SplitLong(sentence string, maxChars int) []string {
	if runeLen(sentence) <= maxChars {
		return []string{sentence}
	}

	var parts []string
	var split func(s string)
	split = func(s string) {
		if runeLen(s) <= maxChars {
			parts = append(parts, s)
			return
		}
		if left, right, ok := splitAtBreakpoint(s); ok {
			split(left)
			split(right)
			return
		}
		parts = append(parts, packWords(s, maxChars)...)
	}
	split(sentence)

	return parts
}

func splitAtBreakpoint(s string) (string, string, bool) {
	for _, bp := range breakpoints {
		i := strings.Index(s, bp)
		if i < 0 {
			continue
		}
		left := strings.TrimSpace(s[:i+len(bp)])
		right := strings.TrimSpace(s[i+len(bp):])
		if left != "" && right != "" {
			return left, right, true
		}
	}
	return "", "", false
}

// packWords never splits a word, so a single word longer than maxChars
// becomes a chunk of its own.
func packWords(s string, maxChars int) []string {
	var (
		chunks  []string
		current string
	)
	for _, word := range strings.Fields(s) {
		if current == "" {
			current = word
			continue
		}
		candidate := current + " " + word
		if runeLen(candidate) <= maxChars {
			current = candidate
			continue
		}
		chunks = append(chunks, current)
		current = word
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}
