package tts

import (
	"context"
	"net/http"
)

const (
	// ModelName is the only model this client speaks to.
	ModelName = "FunAudioLLM/CosyVoice2-0.5B"

	DefaultBaseURL = "https://api.siliconflow.cn"
	DefaultVoice   = "alex"
	DefaultSpeed   = 1.0
	DefaultGain    = 0.0

	// EndpointPath is appended to the base URL unless already present
	EndpointPath = "/v1/audio/speech"

	responseFormat = "mp3"
)

// Options holds the per-call configuration for a synthesis request.
// Speed and Gain are pointers so an explicit zero can be told apart from "not set".
type Options struct {
	APIBaseURL string   `json:"apiBaseUrl,omitempty" yaml:"api_base_url"`
	APIKey     string   `json:"apiKey,omitempty" yaml:"api_key"`
	Voice      string   `json:"voice,omitempty" yaml:"voice"`
	Speed      *float64 `json:"speed,omitempty" yaml:"speed"`
	Gain       *float64 `json:"gain,omitempty" yaml:"gain"`
}

// Merge returns o with every unset field taken from fallback.
func (o Options) Merge(fallback Options) Options {
	out := o
	if out.APIBaseURL == "" {
		out.APIBaseURL = fallback.APIBaseURL
	}
	if out.APIKey == "" {
		out.APIKey = fallback.APIKey
	}
	if out.Voice == "" {
		out.Voice = fallback.Voice
	}
	if out.Speed == nil {
		out.Speed = fallback.Speed
	}
	if out.Gain == nil {
		out.Gain = fallback.Gain
	}
	return out
}

// Float returns a pointer to v, for filling Options literals.
func Float(v float64) *float64 {
	return &v
}

// SpeechRequest is the JSON payload sent to the speech endpoint
type SpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	Gain           float64 `json:"gain"`
	ResponseFormat string  `json:"response_format"`
}

// HTTPClient is the part of *http.Client the synthesizer needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Synthesizer converts text into encoded audio bytes.
type Synthesizer interface {
	// Synthesize returns the MP3 audio for text. lang is a hint and may be ignored.
	Synthesize(ctx context.Context, text, lang string, opts Options) ([]byte, error)
}

// VoiceID composes the provider voice identifier for a voice name.
func VoiceID(voice string) string {
	return ModelName + ":" + voice
}
