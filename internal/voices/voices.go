// Package voices holds the immutable table of known voices and the language
// family each one belongs to. The table is loaded once from embedded YAML.
package voices

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed voices.yaml
var voicesYAML []byte

// ErrUnknownVoice is matched by errors returned from Lookup.
var ErrUnknownVoice = errors.New("unknown voice")

// Voice is one entry of the table.
type Voice struct {
	Name     string
	Grade    string
	Family   string
	Language string
	Tag      language.Tag
}

// Gender returns "female", "male", or "" from the voice name prefix.
func (v Voice) Gender() string {
	if len(v.Name) < 2 {
		return ""
	}
	switch v.Name[1] {
	case 'f':
		return "female"
	case 'm':
		return "male"
	}
	return ""
}

// Family is a language family shared by several voices.
type Family struct {
	Code     string
	Language string
	Tag      language.Tag
}

// UnknownVoiceError carries close matches for a name that is not in the table.
type UnknownVoiceError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownVoiceError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown voice %q", e.Name)
	}
	return fmt.Sprintf("unknown voice %q, did you mean %s?", e.Name, strings.Join(e.Suggestions, ", "))
}

func (e *UnknownVoiceError) Is(target error) bool {
	return target == ErrUnknownVoice
}

// Table maps voice names to their metadata. It is safe for concurrent use
// because it never changes after Parse.
type Table struct {
	voices   map[string]Voice
	names    []string
	families []Family
}

type fileFormat struct {
	Families map[string]struct {
		Language string `yaml:"language"`
		Tag      string `yaml:"tag"`
	} `yaml:"families"`
	Voices map[string]struct {
		Grade    string `yaml:"grade"`
		LangCode string `yaml:"lang_code"`
	} `yaml:"voices"`
}

// Parse builds a table from YAML.
func Parse(data []byte) (*Table, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse voice table: %w", err)
	}

	t := &Table{voices: make(map[string]Voice, len(f.Voices))}
	byCode := make(map[string]Family, len(f.Families))
	for code, fam := range f.Families {
		tag, err := language.Parse(fam.Tag)
		if err != nil {
			return nil, fmt.Errorf("family %q: %w", code, err)
		}
		family := Family{Code: code, Language: fam.Language, Tag: tag}
		byCode[code] = family
		t.families = append(t.families, family)
	}
	sort.Slice(t.families, func(i, j int) bool { return t.families[i].Code < t.families[j].Code })

	for name, v := range f.Voices {
		fam, ok := byCode[v.LangCode]
		if !ok {
			return nil, fmt.Errorf("voice %q: unknown family %q", name, v.LangCode)
		}
		t.voices[name] = Voice{Name: name, Grade: v.Grade, Family: fam.Code, Language: fam.Language, Tag: fam.Tag}
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)

	return t, nil
}

var defaultTable = sync.OnceValues(func() (*Table, error) {
	return Parse(voicesYAML)
})

// Default returns the embedded table. It panics if the embedded data is
// malformed.
func Default() *Table {
	t, err := defaultTable()
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the named voice. Unknown names yield an
// *UnknownVoiceError with up to three suggestions.
func (t *Table) Lookup(name string) (Voice, error) {
	if v, ok := t.voices[name]; ok {
		return v, nil
	}
	if v, ok := t.voices[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v, nil
	}
	return Voice{}, &UnknownVoiceError{Name: name, Suggestions: t.suggest(name, 3)}
}

func (t *Table) suggest(name string, n int) []string {
	var out []string
	for _, m := range fuzzy.Find(strings.ToLower(name), t.names) {
		out = append(out, m.Str)
		if len(out) == n {
			return out
		}
	}
	if len(out) > 0 || len(name) < 2 {
		return out
	}
	// Fall back to voices of the same family and gender.
	for _, candidate := range t.names {
		if strings.HasPrefix(candidate, strings.ToLower(name[:2])) {
			out = append(out, candidate)
			if len(out) == n {
				break
			}
		}
	}
	return out
}

// Names returns every voice name in sorted order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Families returns the language families sorted by code.
func (t *Table) Families() []Family {
	return append([]Family(nil), t.families...)
}

// ByFamily returns the voices of one family sorted by name.
func (t *Table) ByFamily(code string) []Voice {
	var out []Voice
	for _, name := range t.names {
		if v := t.voices[name]; v.Family == code {
			out = append(out, v)
		}
	}
	return out
}

// Tag returns the BCP-47 tag of a voice, or language.Und when unknown.
func (t *Table) Tag(name string) language.Tag {
	if v, ok := t.voices[name]; ok {
		return v.Tag
	}
	return language.Und
}

// Len returns the number of voices.
func (t *Table) Len() int {
	return len(t.voices)
}
