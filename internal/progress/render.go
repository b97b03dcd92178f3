package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

const barWidth = 24

var (
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	clockStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	separator    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(" │ ")
)

// Render draws e as a single status line no wider than width. A width of
// zero or less disables truncation.
func Render(e Event, width int) string {
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)

	parts := []string{
		bar.ViewAs(e.Fraction()),
		counterStyle.Render(fmt.Sprintf("%d/%d", e.ChunksDone, e.ChunksTotal)),
		clockStyle.Render(fmt.Sprintf("%s elapsed, %s left", Clock(e.Elapsed), Clock(e.Remaining))),
	}
	line := strings.Join(parts, separator)

	if width <= 0 {
		return line + separator + textStyle.Render(e.Message)
	}

	room := width - lipgloss.Width(line) - lipgloss.Width(separator)
	if room < 10 {
		return truncate.StringWithTail(line, uint(max(width, 1)), "…")
	}
	return line + separator + textStyle.Render(truncate.StringWithTail(e.Message, uint(room), "…"))
}
