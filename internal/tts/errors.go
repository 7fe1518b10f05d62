package tts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const errorPrefix = "[SiliconFlow]"

var (
	// ErrConfiguration matches every *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("siliconflow: configuration error")
	// ErrRequest matches every *RequestError via errors.Is.
	ErrRequest = errors.New("siliconflow: request error")
)

// ConfigurationError is returned before any network activity when the
// options cannot produce a request.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %s", errorPrefix, e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DebugParameters are the tunable values that went into a request.
type DebugParameters struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Gain  float64 `json:"gain"`
}

// DebugInfo is the diagnostic snapshot attached to every failed request.
type DebugInfo struct {
	APIEndpoint string          `json:"apiEndpoint"`
	VoiceModel  string          `json:"voiceModel"`
	Parameters  DebugParameters `json:"parameters"`
}

// RequestError describes a failed call to the speech endpoint. StatusCode is
// zero when no HTTP response was received.
type RequestError struct {
	StatusCode int
	Body       []byte
	Debug      DebugInfo
	Err        error
}

// Message is the failure description without the debug block.
func (e *RequestError) Message() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API Request Failed [%d]: %s", e.StatusCode, serializePayload(e.Body))
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *RequestError) Error() string {
	debug, err := encodeJSON(e.Debug, "  ")
	if err != nil {
		debug = "{}"
	}
	return fmt.Sprintf("%s TTS Failed: %s\nDebug Info: %s", errorPrefix, e.Message(), debug)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequest
}

// serializePayload renders an error body the way JSON.stringify would:
// JSON bodies are compacted, anything else becomes a quoted string.
func serializePayload(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
	}
	quoted, err := encodeJSON(string(body), "")
	if err != nil {
		return fmt.Sprintf("%q", body)
	}
	return quoted
}

// encodeJSON marshals v without HTML escaping so URLs and payloads read as sent.
func encodeJSON(v any, indent string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
