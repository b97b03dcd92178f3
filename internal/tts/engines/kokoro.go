package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/tts"
	"golang.org/x/time/rate"
)

const (
	defaultKokoroURL   = "http://localhost:8880"
	defaultKokoroModel = "kokoro"
	kokoroSampleRate   = 24000
)

// KokoroConfig holds configuration for the Kokoro engine.
type KokoroConfig struct {
	// URL of an OpenAI-compatible Kokoro server (default http://localhost:8880)
	URL string

	// Model name sent with each request (default "kokoro")
	Model string

	// RequestsPerSecond limits calls per handle, zero for unlimited
	RequestsPerSecond float64

	// Timeout per request (default 60s)
	Timeout time.Duration

	// Client overrides the HTTP client, mainly for tests
	Client *http.Client
}

// KokoroEngine talks to a Kokoro server over /v1/audio/speech and asks for
// raw 24 kHz PCM.
type KokoroEngine struct {
	url     string
	model   string
	family  string
	client  *http.Client
	limiter *rate.Limiter
}

type kokoroRequest struct {
	Model    string  `json:"model"`
	Input    string  `json:"input"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Format   string  `json:"response_format"`
	LangCode string  `json:"lang_code,omitempty"`
}

// NewKokoroEngine creates a Kokoro engine for one voice family. The family
// letter is sent as lang_code.
func NewKokoroEngine(config KokoroConfig, family string) (*KokoroEngine, error) {
	if config.URL == "" {
		config.URL = defaultKokoroURL
	}
	if config.Model == "" {
		config.Model = defaultKokoroModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &KokoroEngine{
		url:     strings.TrimRight(config.URL, "/"),
		model:   config.Model,
		family:  family,
		client:  client,
		limiter: limiter,
	}, nil
}

// Synthesize converts text to raw PCM using the Kokoro server.
func (e *KokoroEngine) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.NewTTSError(tts.ErrorCodeInvalidInput, "empty text", tts.ErrEmptyText)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeCanceled, "rate limit wait cancelled", err)
	}

	body, err := json.Marshal(kokoroRequest{
		Model:    e.model,
		Input:    text,
		Voice:    voice,
		Speed:    speed,
		Format:   "pcm",
		LangCode: e.family,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tts.NewTTSError(tts.ErrorCodeCanceled, "request cancelled", ctx.Err())
		}
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "TTS request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "failed to read audio", err)
	}
	if len(audio) == 0 {
		return nil, tts.NewTTSError(tts.ErrorCodeEngineFailure, "server returned no audio", nil)
	}

	log.Debug("kokoro synthesized", "chars", len(text), "voice", voice, "bytes", len(audio))
	return audio, nil
}

func statusError(status int, body string) *tts.TTSError {
	code := tts.ErrorCodeEngineFailure
	switch {
	case status == http.StatusTooManyRequests:
		code = tts.ErrorCodeRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		code = tts.ErrorCodeInvalidInput
	case status == http.StatusGatewayTimeout:
		code = tts.ErrorCodeEngineTimeout
	}
	return tts.NewTTSError(code, fmt.Sprintf("kokoro returned status %d", status), nil).
		WithContext("body", body)
}

// GetInfo returns engine capabilities and configuration.
func (e *KokoroEngine) GetInfo() tts.EngineInfo {
	return tts.EngineInfo{
		Name:       tts.EngineKokoro,
		Family:     e.family,
		SampleRate: kokoroSampleRate,
		Channels:   1,
		BitDepth:   16,
		IsOnline:   true,
	}
}

// Validate checks that the server answers /v1/models.
func (e *KokoroEngine) Validate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return tts.NewTTSError(tts.ErrorCodeEngineUnavailable, "kokoro server unreachable", err).
			WithContext("url", e.url)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return tts.NewTTSError(tts.ErrorCodeEngineUnavailable,
			fmt.Sprintf("kokoro health check returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// Close releases idle connections.
func (e *KokoroEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

var _ tts.Engine = (*KokoroEngine)(nil)
