package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/tts"
	"github.com/dgnsrekt/narrator/utils"
	"github.com/mattn/go-shellwords"
)

const (
	defaultPiperCommand    = "piper"
	defaultPiperSampleRate = 22050
	maxPiperTextSize       = 5000
)

// PiperConfig holds configuration for the Piper engine.
type PiperConfig struct {
	// Command line used to start piper, parsed like a shell would (default "piper")
	Command string

	// Models maps a voice family to a .onnx model path
	Models map[string]string

	// Speakers maps a voice name to a speaker id of a multi-speaker model
	Speakers map[string]int

	// SampleRate of the model output (default 22050)
	SampleRate int

	// Timeout per call, zero for none
	Timeout time.Duration
}

// PiperEngine runs a fresh piper process per synthesis with the text
// pre-loaded on stdin.
type PiperEngine struct {
	argv       []string
	family     string
	model      string
	speakers   map[string]int
	sampleRate int
	timeout    time.Duration
}

// NewPiperEngine creates a Piper engine for one voice family.
func NewPiperEngine(config PiperConfig, family string) (*PiperEngine, error) {
	command := config.Command
	if command == "" {
		command = defaultPiperCommand
	}
	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse piper command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("piper command empty")
	}

	model, ok := config.Models[family]
	if !ok || model == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineUnavailable,
			fmt.Sprintf("no piper model configured for voice family %q", family), nil)
	}

	if config.SampleRate == 0 {
		config.SampleRate = defaultPiperSampleRate
	}

	return &PiperEngine{
		argv:       argv,
		family:     family,
		model:      utils.ExpandPath(model),
		speakers:   config.Speakers,
		sampleRate: config.SampleRate,
		timeout:    config.Timeout,
	}, nil
}

func (e *PiperEngine) args(voice string, speed float64) []string {
	args := append([]string{}, e.argv[1:]...)
	args = append(args,
		"--model", e.model,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(1.0/speed, 'f', 3, 64),
	)
	if id, ok := e.speakers[voice]; ok {
		args = append(args, "--speaker", strconv.Itoa(id))
	}
	return args
}

// Synthesize converts text to raw PCM using piper.
func (e *PiperEngine) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "empty text", tts.ErrEmptyText)
	}
	if len(text) > maxPiperTextSize {
		return nil, tts.NewTTSError(tts.ErrorCodeTextTooLong,
			fmt.Sprintf("text too long: %d characters (max %d)", len(text), maxPiperTextSize), nil)
	}
	if speed <= 0 {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "speed must be positive", tts.ErrInvalidSpeed)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.argv[0], e.args(voice, speed)...)
	// Stdin is set before start so piper never reads an empty pipe.
	cmd.Stdin = strings.NewReader(text)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			code := tts.ErrorCodeEngineTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				code = tts.ErrorCodeCanceled
			}
			return nil, tts.NewTTSError(code, "piper interrupted", ctx.Err())
		}
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "piper failed", err).
			WithContext("stderr", strings.TrimSpace(stderr.String()))
	}

	audio := stdout.Bytes()
	if len(audio) == 0 {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure,
			"piper produced no audio output", errors.New(strings.TrimSpace(stderr.String())))
	}

	log.Debug("piper synthesized", "chars", len(text), "bytes", len(audio))
	return audio, nil
}

// GetInfo returns engine capabilities and configuration.
func (e *PiperEngine) GetInfo() tts.EngineInfo {
	return tts.EngineInfo{
		Name:        tts.EnginePiper,
		Family:      e.family,
		SampleRate:  e.sampleRate,
		Channels:    1,
		BitDepth:    16,
		MaxTextSize: maxPiperTextSize,
	}
}

// Validate checks that the binary and model are present.
func (e *PiperEngine) Validate() error {
	if _, err := exec.LookPath(e.argv[0]); err != nil {
		return tts.NewTTSError(tts.ErrorCodeEngineUnavailable, "piper not found in PATH", err)
	}
	if _, err := os.Stat(e.model); err != nil {
		return tts.NewTTSError(tts.ErrorCodeEngineUnavailable, "model file not accessible", err).
			WithContext("model", e.model)
	}
	return nil
}

// Close implements tts.Engine. Piper holds no resources between calls.
func (e *PiperEngine) Close() error {
	return nil
}

var _ tts.Engine = (*PiperEngine)(nil)
