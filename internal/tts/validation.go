package tts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine names accepted by ValidateEngineSelection.
const (
	EngineKokoro = "kokoro"
	EnginePiper  = "piper"
	EngineMock   = "mock"
)

// Engines lists the selectable engine names.
var Engines = []string{EngineKokoro, EnginePiper, EngineMock}

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	// Engine is the validated engine name
	Engine string

	// Available indicates if the engine is available and configured
	Available bool

	// Error contains any validation error
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional validation information
	Details map[string]string
}

// ValidateEngineSelection resolves the engine name from the CLI argument,
// falling back to the configured value and then to kokoro.
func ValidateEngineSelection(cliArg, configured string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(cliArg))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(configured))
	}
	if name == "" {
		name = EngineKokoro
	}

	switch name {
	case EngineKokoro, "kokoro-fastapi":
		return EngineKokoro, nil
	case EnginePiper:
		return EnginePiper, nil
	case EngineMock:
		return EngineMock, nil
	default:
		return "", fmt.Errorf("%w: %s\n\nSupported engines:\n  - kokoro (Kokoro HTTP server)\n  - piper (offline binary)\n  - mock (test tone)", ErrInvalidEngine, name)
	}
}

// ValidateEngine builds a single handle for family and runs a short test
// synthesis through it.
func ValidateEngine(ctx context.Context, name, family string, factory Factory) *ValidationResult {
	result := &ValidationResult{
		Engine:  name,
		Details: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	engine, err := factory(ctx, family)
	if err != nil {
		result.Error = err
		result.Guidance = guidanceFor(name)
		return result
	}
	defer engine.Close()

	info := engine.GetInfo()
	result.Details["engine"] = info.Name
	result.Details["family"] = family
	result.Details["sample_rate"] = fmt.Sprintf("%d Hz", info.SampleRate)
	if info.IsOnline {
		result.Details["mode"] = "online"
	} else {
		result.Details["mode"] = "offline"
	}

	if err := engine.Validate(); err != nil {
		result.Error = err
		result.Guidance = guidanceFor(name)
		return result
	}

	pcm, err := engine.Synthesize(ctx, "Test.", "", 1.0)
	if err != nil {
		result.Error = fmt.Errorf("test synthesis failed: %w", err)
		result.Guidance = guidanceFor(name)
		return result
	}
	result.Details["probe_bytes"] = fmt.Sprintf("%d", len(pcm))

	result.Available = true
	return result
}

func guidanceFor(name string) string {
	switch name {
	case EnginePiper:
		return buildPiperGuidance()
	case EngineKokoro:
		return buildKokoroGuidance()
	default:
		return "Check the engine configuration in narrator.yml"
	}
}

func buildPiperGuidance() string {
	return `Piper could not be used. Please check:

1. The piper binary is on PATH, or piper.command points at it
2. A model is configured for the voice family:
   piper:
     models:
       a: ~/.local/share/piper/models/en_US-amy-medium.onnx
3. Try running piper manually:
   echo "Hello world" | piper --model /path/to/model.onnx --output-raw`
}

func buildKokoroGuidance() string {
	return `The Kokoro server could not be reached. Please check:

1. The server is running, for example:
   docker run -p 8880:8880 ghcr.io/remsky/kokoro-fastapi-cpu
2. kokoro.url in narrator.yml points at it (default http://localhost:8880)
3. The server answers GET /v1/models`
}
