package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type replacement struct {
	symbol string
	word   string
	re     *regexp.Regexp
}

// replacements is applied in order. Each run of a symbol becomes " word ".
var replacements = compileReplacements([][2]string{
	{"$", "dollar"},
	{"^", "caret"},
	{"`", "backtick"},
	{"~", "tilde"},
	{"@", "at"},
	{"&", "and"},
	{"*", "star"},
	{"_", "underscore"},
	{"---", "—"},
	{"(", ","},
	{")", ","},
	{"[", ","},
	{"]", ","},
	{`"`, "quote"},
	{"/", "forward slash"},
	{`\`, "backslash"},
})

func compileReplacements(table [][2]string) []replacement {
	out := make([]replacement, 0, len(table))
	for _, row := range table {
		out = append(out, replacement{
			symbol: row[0],
			word:   row[1],
			re:     regexp.MustCompile(regexp.QuoteMeta(row[0]) + "+"),
		})
	}
	return out
}

// Normalize rewrites symbols that engines tend to mispronounce into words and
// trims the result. Newlines are kept so paragraphs survive.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	for _, r := range replacements {
		if !strings.Contains(text, r.symbol) {
			continue
		}
		text = r.re.ReplaceAllLiteralString(text, " "+r.word+" ")
	}
	return strings.TrimSpace(text)
}
