package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/internal/voices"
	"github.com/dgnsrekt/narrator/internal/wav"
	"github.com/spf13/cobra"
)

const sampleText = "The quick brown fox jumps over the lazy dog."

var sampleOut string

var sampleCmd = &cobra.Command{
	Use:   "sample [TEXT]",
	Short: "Speak a short phrase with the configured voice",
	Long: paragraph(fmt.Sprintf("\nSynthesize one phrase and %s it, or write it to a WAV file with --out. Useful for comparing voices and speeds.",
		keyword("play"))),
	Example: paragraph("narrator sample\nnarrator sample --voice bm_george \"Good evening.\"\nnarrator sample --speed 1.3 --out sample.wav"),
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			text = sampleText
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		samples, err := a.sample(cmd.Context(), text)
		if err != nil {
			return err
		}

		p := a.cfg.Params()
		if sampleOut != "" {
			if err := os.WriteFile(sampleOut, wav.Encode(samples, p.SampleRate), 0o644); err != nil { //nolint:gosec
				return fmt.Errorf("unable to write sample: %w", err)
			}
			fmt.Printf("%s Wrote %s (%s)\n", successStyle.Render("✓"), keyword(sampleOut), audio.Duration(int64(len(samples)), p.SampleRate))
			return nil
		}

		player, err := audio.NewPlayer(p.SampleRate)
		if err != nil {
			return fmt.Errorf("%w, use --out to write a file instead", err)
		}
		defer player.Close() //nolint:errcheck
		if err := player.Play(cmd.Context(), audio.EncodePCM16(samples)); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	sampleCmd.Flags().StringVar(&sampleOut, "out", "", "write the sample to a WAV file instead of playing it")
}

// sample synthesizes text through a one-handle pool and applies the same
// resampling and trimming as a full run.
func (a *app) sample(ctx context.Context, text string) ([]float32, error) {
	p := a.cfg.Params()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	v, err := voices.Default().Lookup(p.Voice)
	if err != nil {
		return nil, err
	}

	pool, err := tts.NewPool(ctx, 1, v.Family, a.factory)
	if err != nil {
		return nil, err
	}
	defer pool.Close() //nolint:errcheck

	log.Debug("Synthesizing sample", "voice", v.Name, "family", v.Family, "engine", pool.Info().Name)
	pcm, err := pool.Invoke(ctx, 0, text, v.Name, p.Speed)
	if err != nil {
		return nil, err
	}

	samples := audio.Resample(audio.DecodePCM16(pcm), pool.SampleRate(), p.SampleRate)
	return audio.Trim(samples, p.SilenceThreshold, p.SilenceMarginSamples), nil
}
