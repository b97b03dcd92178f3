package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgnsrekt/narrator/internal/chunker"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rawChunks bool

var chunksCmd = &cobra.Command{
	Use:   "chunks [INPUT]",
	Short: "Show how a text will be split before narrating it",
	Long: paragraph(fmt.Sprintf("\nPrint the %s the engine would receive, with pause markers between sentences and paragraphs.",
		keyword("chunks"))),
	Example: paragraph("narrator chunks book.txt\nnarrator chunks --max-chars 120 chapter.md\ncat notes.txt | narrator chunks --raw"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := resolveSource(args)
		if err != nil {
			return err
		}
		if src == nil {
			return cmd.Help()
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a := &app{cfg: cfg}
		text, err := a.loadText(src)
		if err != nil {
			return err
		}

		res := chunker.SegmentWith(text, chunker.Options{MaxChars: cfg.MaxChars})
		if rawChunks {
			for _, c := range res.Chunks {
				fmt.Println(c.Text)
			}
			return nil
		}
		printChunks(res, terminalWidth())
		return nil
	},
}

func init() {
	chunksCmd.Flags().BoolVar(&rawChunks, "raw", false, "print chunks verbatim, one per line")
	chunksCmd.Flags().BoolVar(&fromClipboard, "clipboard", false, "read the text from the clipboard")
}

func printChunks(res chunker.Result, width int) {
	var b strings.Builder
	n := 0
	for _, c := range res.Chunks {
		if c.IsPause() {
			b.WriteString(indent.String(faintStyle.Render("· pause"), 6))
			b.WriteByte('\n')
			continue
		}
		n++
		first, rest, _ := strings.Cut(wordwrap.String(c.Text, max(width-8, 20)), "\n")
		b.WriteString(indexStyle.Render(fmt.Sprintf("%5d", n)) + " " + first + "\n")
		if rest != "" {
			b.WriteString(indent.String(rest, 6) + "\n")
		}
	}
	fmt.Print(b.String())

	summary := fmt.Sprintf("%d chunks, %d to synthesize", len(res.Chunks), chunker.SpeechCount(res.Chunks))
	if res.Degraded {
		summary += warnStyle.Render(" (sentence splitting degraded)")
	}
	fmt.Println("\n" + faintStyle.Render(summary))
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec
		return w
	}
	return 80
}
