package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/narrator/internal/narration"
	"github.com/dgnsrekt/narrator/internal/progress"
	"github.com/dgnsrekt/narrator/internal/queue"
	"github.com/dgnsrekt/narrator/utils"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue INPUT[:OUTPUT]...",
	Short: "Narrate several files one after another",
	Long: paragraph(fmt.Sprintf("\nNarrate files %s. Existing checkpoints are always resumed, and the queue halts at the first file that does not complete.",
		keyword("in order"))),
	Example: paragraph("narrator queue ch1.md ch2.md ch3.md\nnarrator queue intro.txt:out/00.wav body.txt:out/01.wav"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := queue.New()
		for _, arg := range args {
			in, out := queue.ParseSpec(arg)
			if err := q.Add(utils.ExpandPath(in), utils.ExpandPath(out)); err != nil {
				return err
			}
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		ctl := narration.NewControl()
		defer watchSignals(ctl, cancel)()

		view := newStatusView(os.Stderr)
		stats, err := q.Run(ctx, a.runner, ctl, queue.Options{
			Params: a.cfg.Params(),
			Load:   a.loadFile,
			OnUpdate: func(i int, it queue.Item, u narration.Update) {
				if !u.Final() {
					view.update(u)
					return
				}
				view.clear()
				fmt.Printf("%s %s %s %s\n",
					indexStyle.Render(fmt.Sprintf("[%d/%d]", i+1, q.Len())),
					statusStyle(it.Status).Render(fmt.Sprintf("%-9s", it.Status)),
					it.Input, faintStyle.Render("→ "+it.Output))
			},
		})
		view.clear()

		fmt.Printf("\n%d completed, %d remaining, %s\n", stats.Completed, stats.Remaining, progress.Clock(stats.Elapsed))
		return err
	},
}

func statusStyle(s queue.Status) lipgloss.Style {
	switch s {
	case queue.Completed:
		return successStyle
	case queue.Failed:
		return errorStyle
	case queue.Paused, queue.Stopped:
		return warnStyle
	}
	return faintStyle
}
