package main

import (
	"fmt"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var clearCache bool

var cacheCmd = &cobra.Command{
	Use:     "cache",
	Short:   "Show or clear the audio cache",
	Long:    paragraph(fmt.Sprintf("\nSynthesized chunks are kept in a %s so re-running a text does not ask the engine again.", keyword("compressed disk cache"))),
	Example: paragraph("narrator cache\nnarrator cache --clear"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cc, err := cfg.CacheSettings()
		if err != nil {
			return err
		}
		m, err := cache.NewManager(cc)
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		if clearCache {
			if err := m.Clear(); err != nil {
				return fmt.Errorf("unable to clear cache: %w", err)
			}
			fmt.Printf("%s Cleared %s\n", successStyle.Render("✓"), cc.Dir)
			return nil
		}

		_, disk := m.Stats()
		state := successStyle.Render("enabled")
		if !cfg.Cache.Enabled {
			state = warnStyle.Render("disabled")
		}
		fmt.Printf("%s %s\n", headerStyle.Render("Audio cache"), state)
		fmt.Printf("  directory  %s\n", cc.Dir)
		fmt.Printf("  entries    %s\n", humanize.Comma(disk.ItemCount))
		fmt.Printf("  size       %s of %s\n", humanize.Bytes(uint64(disk.Size)), humanize.Bytes(uint64(disk.Capacity))) //nolint:gosec
		fmt.Printf("  expiry     %s\n", faintStyle.Render(fmt.Sprintf("after %s", cc.TTL)))
		return nil
	},
}

func init() {
	cacheCmd.Flags().BoolVar(&clearCache, "clear", false, "remove every cached chunk")
}
