package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/internal/tts/engines"
	"github.com/dgnsrekt/narrator/internal/voices"
	"github.com/spf13/cobra"
)

var errEngineUnavailable = errors.New("engine is not available")

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Check that the configured engine can synthesize speech",
	Long:    paragraph(fmt.Sprintf("\nBuild one engine handle for the configured voice and run a %s through it.", keyword("test synthesis"))),
	Example: paragraph("narrator check\nnarrator check --engine piper --voice bf_emma"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, err := voices.Default().Lookup(cfg.Voice)
		if err != nil {
			return err
		}
		factory, err := engines.NewFactory(cfg.EngineConfig(nil))
		if err != nil {
			return err
		}

		res := tts.ValidateEngine(cmd.Context(), cfg.Engine, v.Family, factory)

		mark := successStyle.Render("✓")
		if !res.Available {
			mark = errorStyle.Render("✗")
		}
		fmt.Printf("%s %s %s\n", mark, headerStyle.Render(res.Engine), faintStyle.Render(fmt.Sprintf("voice %s, %s", v.Name, v.Language)))

		keys := make([]string, 0, len(res.Details))
		for k := range res.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %-12s %s\n", k, res.Details[k])
		}

		if res.Available {
			return nil
		}
		fmt.Printf("\n  %s\n", errorStyle.Render(res.Error.Error()))
		if res.Guidance != "" {
			fmt.Println()
			fmt.Println(paragraph(res.Guidance))
		}
		return errEngineUnavailable
	},
}
