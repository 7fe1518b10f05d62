package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// maxErrorBody caps how much of a failed response is kept for the error message
	maxErrorBody = 64 << 10
	// maxDrain caps how much unread body is discarded before closing; a longer
	// remainder costs the keep-alive connection instead.
	maxDrain = 64 << 10
)

// SiliconFlowClient implements Synthesizer against SiliconFlow's CosyVoice2 speech endpoint.
// It keeps no per-call state and is safe for concurrent use.
type SiliconFlowClient struct {
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewSiliconFlowClient creates a new SiliconFlow TTS client. A nil httpClient
// means http.DefaultClient; no timeout is added on top of the client's own.
func NewSiliconFlowClient(httpClient HTTPClient, logger zerolog.Logger) *SiliconFlowClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SiliconFlowClient{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "siliconflow_tts").Logger(),
	}
}

var _ Synthesizer = (*SiliconFlowClient)(nil)

// resolvedOptions is Options after defaults and URL normalization
type resolvedOptions struct {
	endpoint string
	apiKey   string
	voice    string
	speed    float64
	gain     float64
}

func (r resolvedOptions) debugInfo() DebugInfo {
	return DebugInfo{
		APIEndpoint: r.endpoint,
		VoiceModel:  ModelName,
		Parameters: DebugParameters{
			Voice: r.voice,
			Speed: r.speed,
			Gain:  r.gain,
		},
	}
}

// resolveOptions applies defaults. A nil or non-positive speed becomes
// DefaultSpeed; a nil gain becomes DefaultGain while an explicit 0 is kept.
// NaN and infinite values are rejected since JSON cannot carry them.
func resolveOptions(opts Options) (resolvedOptions, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return resolvedOptions{}, &ConfigurationError{Field: "apiKey", Message: "API key is required"}
	}
	if !finite(opts.Speed) {
		return resolvedOptions{}, &ConfigurationError{Field: "speed", Message: "speed must be a finite number"}
	}
	if !finite(opts.Gain) {
		return resolvedOptions{}, &ConfigurationError{Field: "gain", Message: "gain must be a finite number"}
	}

	r := resolvedOptions{
		endpoint: NormalizeBaseURL(opts.APIBaseURL),
		apiKey:   apiKey,
		voice:    strings.TrimSpace(opts.Voice),
		speed:    DefaultSpeed,
		gain:     DefaultGain,
	}
	if r.voice == "" {
		r.voice = DefaultVoice
	}
	if opts.Speed != nil && *opts.Speed > 0 {
		r.speed = *opts.Speed
	}
	if opts.Gain != nil {
		r.gain = *opts.Gain
	}
	return r, nil
}

func finite(v *float64) bool {
	return v == nil || !(math.IsNaN(*v) || math.IsInf(*v, 0))
}

// BuildRequest resolves opts and returns the endpoint URL together with the
// payload that Synthesize would send for text.
func BuildRequest(text string, opts Options) (string, *SpeechRequest, error) {
	r, err := resolveOptions(opts)
	if err != nil {
		return "", nil, err
	}
	return r.endpoint, newSpeechRequest(text, r), nil
}

func newSpeechRequest(text string, r resolvedOptions) *SpeechRequest {
	return &SpeechRequest{
		Model:          ModelName,
		Input:          text,
		Voice:          VoiceID(r.voice),
		Speed:          r.speed,
		Gain:           r.gain,
		ResponseFormat: responseFormat,
	}
}

// Synthesize sends one speech request and returns the MP3 body unchanged.
// The language hint is accepted for interface compatibility and not used.
func (c *SiliconFlowClient) Synthesize(ctx context.Context, text, _ string, opts Options) ([]byte, error) {
	r, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(newSpeechRequest(text, r))
	if err != nil {
		return nil, c.fail(r, &RequestError{Err: fmt.Errorf("failed to marshal request: %w", err)})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, c.fail(r, &RequestError{Err: fmt.Errorf("failed to create request: %w", err)})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(r, &RequestError{Err: fmt.Errorf("failed to make request: %w", err)})
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, c.fail(r, &RequestError{
			StatusCode: resp.StatusCode,
			Body:       errBody,
			Err:        fmt.Errorf("siliconflow API returned status %d", resp.StatusCode),
		})
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(r, &RequestError{Err: fmt.Errorf("failed to read audio response: %w", err)})
	}

	c.logger.Debug().
		Str("api_endpoint", r.endpoint).
		Str("voice", r.voice).
		Int("text_length", len(text)).
		Int("audio_bytes", len(audioData)).
		Msg("Speech synthesized")

	return audioData, nil
}

// fail attaches the debug snapshot to reqErr and logs it.
func (c *SiliconFlowClient) fail(r resolvedOptions, reqErr *RequestError) error {
	reqErr.Debug = r.debugInfo()

	event := c.logger.Error().
		Str("api_endpoint", reqErr.Debug.APIEndpoint).
		Str("voice_model", reqErr.Debug.VoiceModel).
		Str("voice", r.voice).
		Float64("speed", r.speed).
		Float64("gain", r.gain)
	if reqErr.StatusCode != 0 {
		event = event.Int("status_code", reqErr.StatusCode)
	}
	if reqErr.Err != nil {
		event = event.Err(reqErr.Err)
	}
	event.Msg("SiliconFlow TTS request failed")

	return reqErr
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrain))
	_ = body.Close()
}
