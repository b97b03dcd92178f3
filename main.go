// Package main provides the entry point for the narrator CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/queue"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	envConfig  config.Env
	logClosers []func() error

	debug         bool
	outputPath    string
	fromClipboard bool
	fresh         bool
	forceMarkdown bool
	hideProgress  bool

	rootCmd = &cobra.Command{
		Use:   "narrator [INPUT]",
		Short: "Turn long text into a single narrated WAV file",
		Long: paragraph(
			fmt.Sprintf("\nTurn long text into a %s. Interrupted runs %s where they left off.",
				keyword("single narrated WAV file"), keyword("resume")),
		),
		Example:          paragraph("narrator book.txt\nnarrator chapter.md -o chapter.wav --voice bf_emma --batch 4\ncat notes.txt | narrator - -o notes.wav"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if debug || viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	if cfg.LogFile != "" && envConfig.LogFile == "" {
		closer, err := attachLogFile(cfg.LogFile)
		if err != nil {
			log.Warn("Could not open log file", "path", cfg.LogFile, "err", err)
		} else {
			logClosers = append(logClosers, closer)
		}
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	src, err := resolveSource(args)
	if err != nil {
		return err
	}
	if src == nil {
		return cmd.Help()
	}

	out := outputPath
	if out == "" {
		if src.path == "" {
			return errors.New("an output path is required when reading from stdin or the clipboard, use -o")
		}
		out = queue.DefaultOutput(src.path)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	text, err := a.loadText(src)
	if err != nil {
		return err
	}

	return a.convert(cmd.Context(), text, src.path, out, !fresh)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	code := 0
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		code = 1
	}
	_ = closer()
	for _, c := range logClosers {
		_ = c()
	}
	os.Exit(code)
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	pf.BoolVar(&debug, "debug", false, "log debug output")
	pf.String("engine", "", "speech engine: kokoro, piper, or mock")
	pf.String("voice", "", "voice name, see 'narrator voices'")
	pf.Float64("speed", 0, "speaking speed (0.1 - 3.0)")
	pf.Int("sample-rate", 0, "output sample rate in Hz")
	pf.Float64("threshold", 0, "silence trimming threshold (0 - 1)")
	pf.Int("margin-ms", 0, "silence kept around trimmed speech, in milliseconds")
	pf.Int("max-chars", 0, "longest chunk sent to the engine")
	pf.IntP("batch", "b", 0, "chunks synthesized in parallel")
	pf.Int("pool", 0, "engine instances (0 = same as --batch)")
	pf.BoolVar(&forceMarkdown, "markdown", false, "treat the input as Markdown regardless of extension")
	pf.BoolVar(&hideProgress, "no-progress", false, "log progress instead of drawing a status line")

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output WAV file (default INPUT with .wav)")
	rootCmd.Flags().BoolVar(&fromClipboard, "clipboard", false, "read the text from the clipboard")
	rootCmd.Flags().BoolVar(&fresh, "fresh", false, "ignore any checkpoint and start from the beginning")

	// Config bindings
	_ = viper.BindPFlag("debug", pf.Lookup("debug"))
	_ = viper.BindPFlag("engine", pf.Lookup("engine"))
	_ = viper.BindPFlag("voice", pf.Lookup("voice"))
	_ = viper.BindPFlag("speed", pf.Lookup("speed"))
	_ = viper.BindPFlag("sample_rate", pf.Lookup("sample-rate"))
	_ = viper.BindPFlag("threshold", pf.Lookup("threshold"))
	_ = viper.BindPFlag("margin_ms", pf.Lookup("margin-ms"))
	_ = viper.BindPFlag("max_chars", pf.Lookup("max-chars"))
	_ = viper.BindPFlag("batch", pf.Lookup("batch"))
	_ = viper.BindPFlag("pool", pf.Lookup("pool"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, queueCmd, chunksCmd, voicesCmd, sampleCmd, historyCmd, cacheCmd, checkCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.Dirs(os.Getenv("NARRATOR_CONFIG_HOME"))
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], config.FileName)
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
