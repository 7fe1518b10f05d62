package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lexiqai/siliconflow-tts/internal/observability"
	"github.com/lexiqai/siliconflow-tts/internal/resilience"
	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

const (
	correlationHeader = "X-Correlation-ID"
	maxRequestBody    = 1 << 20
)

// SynthesisRequest is the body of POST /v1/tts and of each stream message.
// The API key and endpoint come from server config; a Bearer token on the
// inbound request replaces the configured key.
type SynthesisRequest struct {
	ID    string   `json:"id,omitempty"`
	Text  string   `json:"text"`
	Lang  string   `json:"lang,omitempty"`
	Voice string   `json:"voice,omitempty"`
	Speed *float64 `json:"speed,omitempty"`
	Gain  *float64 `json:"gain,omitempty"`
}

// ErrorResponse is the JSON error body for both transports
type ErrorResponse struct {
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// requestError is a gateway-side rejection that never reaches the adapter
type requestError struct {
	status int
	code   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func (api *API) options(req *SynthesisRequest, apiKey string) tts.Options {
	return tts.Options{
		APIKey: apiKey,
		Voice:  req.Voice,
		Speed:  req.Speed,
		Gain:   req.Gain,
	}.Merge(api.defaults)
}

func (api *API) validate(req *SynthesisRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return &requestError{status: http.StatusBadRequest, code: "invalid_request", msg: "text is required"}
	}
	if limit := api.cfg.MaxTextLength; limit > 0 && utf8.RuneCountInString(req.Text) > limit {
		return &requestError{
			status: http.StatusRequestEntityTooLarge,
			code:   "text_too_long",
			msg:    fmt.Sprintf("text exceeds %d characters", limit),
		}
	}
	return nil
}

// synthesize validates req and runs it through the synthesizer, recording metrics.
func (api *API) synthesize(ctx context.Context, transport string, req *SynthesisRequest, apiKey string, logger zerolog.Logger) ([]byte, error) {
	metrics := observability.NewRequestMetrics(transport)

	if err := api.validate(req); err != nil {
		_, code := classify(err)
		metrics.RecordEnd(code, 0)
		return nil, err
	}
	metrics.RecordText(utf8.RuneCountInString(req.Text))

	audio, err := api.synth.Synthesize(ctx, req.Text, req.Lang, api.options(req, apiKey))
	if err != nil {
		_, code := classify(err)
		metrics.RecordEnd(code, 0)
		observability.RecordError(code, transport)
		logger.Warn().Err(err).Str("error_type", code).Msg("Synthesis failed")
		return nil, err
	}

	metrics.RecordEnd("success", len(audio))
	logger.Info().
		Int("text_length", len(req.Text)).
		Int("audio_bytes", len(audio)).
		Msg("Synthesis completed")
	return audio, nil
}

func (api *API) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	logger, correlationID := observability.WithCorrelationID(api.logger, r.Header.Get(correlationHeader))
	logger = logger.With().Str("transport", observability.TransportHTTP).Logger()
	w.Header().Set(correlationHeader, correlationID)

	var req SynthesisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, "", &requestError{
			status: http.StatusBadRequest,
			code:   "invalid_request",
			msg:    fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	audio, err := api.synthesize(r.Context(), observability.TransportHTTP, &req, bearerToken(r), logger)
	if err != nil {
		writeError(w, req.ID, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// classify maps an error onto an HTTP status and a short error code.
func classify(err error) (int, string) {
	var reqErr *requestError
	var upstreamErr *tts.RequestError

	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, reqErr.code
	case errors.Is(err, tts.ErrConfiguration):
		return http.StatusBadRequest, "configuration_error"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.As(err, &upstreamErr) && upstreamErr.StatusCode != 0:
		return http.StatusBadGateway, "upstream_status"
	case errors.Is(err, tts.ErrRequest):
		return http.StatusBadGateway, "upstream_unreachable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorResponse(id string, err error) (int, ErrorResponse) {
	status, code := classify(err)
	return status, ErrorResponse{ID: id, Error: code, Message: err.Error()}
}

func writeError(w http.ResponseWriter, id string, err error) {
	status, body := errorResponse(id, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
