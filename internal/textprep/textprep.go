// Package textprep turns Markdown into plain text paragraphs, one per line,
// ready for the chunker.
package textprep

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Options controls what is spoken.
type Options struct {
	// IncludeCode keeps fenced and indented code blocks.
	IncludeCode bool

	// SkipHeadings drops headings instead of speaking them as sentences.
	SkipHeadings bool
}

// IsMarkdown reports whether path has a Markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown", ".mkd", ".mkdn":
		return true
	}
	return false
}

// Markdown converts source to plain text with one paragraph per line.
func Markdown(source string, opts Options) (string, error) {
	src := []byte(source)
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	w := &walker{src: src, opts: opts}
	if err := ast.Walk(doc, w.visit); err != nil {
		return "", fmt.Errorf("failed to walk markdown: %w", err)
	}
	return strings.Join(w.paragraphs, "\n"), nil
}

type walker struct {
	src        []byte
	opts       Options
	paragraphs []string
}

func (w *walker) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch n := n.(type) {
	case *ast.Heading:
		if !w.opts.SkipHeadings {
			w.add(terminate(w.inline(n)))
		}
		return ast.WalkSkipChildren, nil
	case *ast.Paragraph, *ast.TextBlock:
		w.add(w.inline(n))
		return ast.WalkSkipChildren, nil
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if w.opts.IncludeCode {
			w.addLines(n)
		}
		return ast.WalkSkipChildren, nil
	case *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	case *east.TableHeader, *east.TableRow:
		var cells []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if s := w.inline(c); s != "" {
				cells = append(cells, s)
			}
		}
		w.add(terminate(strings.Join(cells, ", ")))
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (w *walker) add(s string) {
	s = strings.Join(strings.Fields(s), " ")
	if s != "" {
		w.paragraphs = append(w.paragraphs, s)
	}
}

func (w *walker) addLines(n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.add(string(seg.Value(w.src)))
	}
}

// inline collects the text of n's inline descendants.
func (w *walker) inline(n ast.Node) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(w.src))
				if c.SoftLineBreak() || c.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(c.Value)
			case *ast.AutoLink:
				b.Write(c.Label(w.src))
			case *ast.RawHTML:
			case *ast.Image:
				if alt := w.inline(c); alt != "" {
					b.WriteString(alt)
				}
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// terminate ends s with a period unless it already ends a sentence, so
// headings and table rows do not run into the next paragraph.
func terminate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	if strings.ContainsRune(".!?:;", last) {
		return s
	}
	return s + "."
}
