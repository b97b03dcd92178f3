package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/textprep"
	"github.com/dgnsrekt/narrator/utils"
	"golang.org/x/term"
)

// source is where the text of a run comes from.
type source struct {
	// path is the input file, empty for stdin and the clipboard
	path  string
	label string
	read  func() (string, error)
}

// resolveSource picks the input from the arguments. It returns nil when
// there is nothing to read.
func resolveSource(args []string) (*source, error) {
	if fromClipboard {
		return &source{label: "clipboard", read: clipboard.ReadAll}, nil
	}

	if len(args) == 0 {
		if stdinIsPipe() {
			return stdinSource(), nil
		}
		return nil, nil
	}
	if utils.IsStdin(args[0]) {
		return stdinSource(), nil
	}
	return fileSource(args[0])
}

func stdinSource() *source {
	return &source{label: "stdin", read: func() (string, error) {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), nil
	}}
}

func fileSource(arg string) (*source, error) {
	path, err := filepath.Abs(utils.ExpandPath(arg))
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", arg)
	}
	return &source{path: path, label: arg, read: func() (string, error) {
		return readFile(path)
	}}, nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read file: %w", err)
	}
	return string(b), nil
}

func stdinIsPipe() bool {
	return !term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec
}

// loadText reads src and applies the Markdown pre-pass when the input is
// Markdown.
func (a *app) loadText(src *source) (string, error) {
	text, err := src.read()
	if err != nil {
		return "", err
	}
	return a.prepare(src.path, text)
}

func (a *app) prepare(path, text string) (string, error) {
	if !forceMarkdown && !textprep.IsMarkdown(path) {
		return text, nil
	}
	out, err := textprep.Markdown(text, a.cfg.TextOptions())
	if err != nil {
		return "", err
	}
	log.Debug("Converted Markdown to plain text", "path", path, "bytes", len(out))
	return out, nil
}

// loadFile is the queue's loader.
func (a *app) loadFile(path string) (string, error) {
	text, err := readFile(path)
	if err != nil {
		return "", err
	}
	return a.prepare(path, text)
}
