package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/narrator/internal/history"
	"github.com/dgnsrekt/narrator/internal/progress"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyRun   string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Show recent narration runs",
	Long:    paragraph(fmt.Sprintf("\nList %s with their outcome, or the batches of one run with --run.", keyword("recent runs"))),
	Example: paragraph("narrator history\nnarrator history --limit 5\nnarrator history --run 3f2a9c1e"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, err := cfg.HistoryPath()
		if err != nil {
			return err
		}
		store, err := history.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		if historyRun != "" {
			return showRun(cmd, store, historyRun)
		}

		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println(faintStyle.Render("No runs recorded yet."))
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s %s %s %s %s\n",
				indexStyle.Render(r.ID[:8]),
				outcomeStyle(r.Outcome).Render(fmt.Sprintf("%-8s", r.Outcome)),
				fmt.Sprintf("%5d/%-5d", r.ChunksDone, r.ChunksTotal),
				filepath.Base(r.Output),
				faintStyle.Render(humanize.Time(r.StartedAt)))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the batches of one run")
}

func showRun(cmd *cobra.Command, store *history.Store, id string) error {
	run, err := store.Find(cmd.Context(), id)
	switch {
	case errors.Is(err, history.ErrUnknownRun):
		return fmt.Errorf("no run with id %q", id)
	case errors.Is(err, history.ErrAmbiguousRun):
		return fmt.Errorf("%q matches several runs, give more of the id", id)
	case err != nil:
		return err
	}

	fmt.Printf("%s %s\n", headerStyle.Render("Run"), run.ID)
	fmt.Printf("  input    %s\n  output   %s\n  voice    %s\n", run.Input, run.Output, run.Voice)
	fmt.Printf("  outcome  %s, %d/%d chunks", outcomeStyle(run.Outcome).Render(run.Outcome), run.ChunksDone, run.ChunksTotal)
	if d := run.Duration(); d > 0 {
		fmt.Printf(" in %s", progress.Clock(d))
	}
	fmt.Println()
	if run.Error != "" {
		fmt.Printf("  error    %s\n", errorStyle.Render(run.Error))
	}

	batches, err := store.Batches(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	for _, b := range batches {
		fmt.Printf("  %s %s\n", indexStyle.Render(fmt.Sprintf("%4d", b.Batch)), b.Message)
	}
	return nil
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "success":
		return successStyle
	case "failed":
		return errorStyle
	case "paused", "stopped":
		return warnStyle
	}
	return faintStyle
}
