package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/siliconflow-tts/internal/config"
	"github.com/lexiqai/siliconflow-tts/internal/observability"
	"github.com/lexiqai/siliconflow-tts/internal/resilience"
	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

type fakeSynthesizer struct {
	mu       sync.Mutex
	audio    []byte
	err      error
	calls    int
	lastText string
	lastOpts tts.Options
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text, _ string, opts tts.Options) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastText = text
	f.lastOpts = opts
	return f.audio, f.err
}

func (f *fakeSynthesizer) snapshot() (int, string, tts.Options) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.lastText, f.lastOpts
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.SiliconFlowAPIKey = "server-key"
	cfg.SiliconFlowVoice = "anna"
	cfg.SiliconFlowGain = 1.5
	return &cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, synth tts.Synthesizer) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	api := NewAPI(cfg, zerolog.Nop(), synth)
	return api.NewRouter(ctx, map[string]observability.HealthCheckFunc{
		"siliconflow": ConfigCheck(cfg),
	})
}

func postTTS(t *testing.T, handler http.Handler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/tts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleSynthesize_Success(t *testing.T) {
	audio := []byte{0xff, 0xf3, 0x01, 0x02}
	synth := &fakeSynthesizer{audio: audio}
	handler := newTestRouter(t, testConfig(), synth)

	rec := postTTS(t, handler, `{"text":"hello","voice":"bella","gain":0}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(correlationHeader))
	assert.True(t, bytes.Equal(audio, rec.Body.Bytes()))

	calls, text, opts := synth.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "server-key", opts.APIKey)
	assert.Equal(t, "https://api.siliconflow.cn", opts.APIBaseURL)
	assert.Equal(t, "bella", opts.Voice)
	require.NotNil(t, opts.Speed)
	assert.Equal(t, 1.0, *opts.Speed)
	require.NotNil(t, opts.Gain)
	assert.Equal(t, 0.0, *opts.Gain, "explicit zero gain must override the configured gain")
}

func TestHandleSynthesize_EchoesCorrelationID(t *testing.T) {
	handler := newTestRouter(t, testConfig(), &fakeSynthesizer{audio: []byte("mp3")})

	rec := postTTS(t, handler, `{"text":"hello"}`, http.Header{correlationHeader: {"trace-42"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-42", rec.Header().Get(correlationHeader))
}

func TestHandleSynthesize_ConfiguredDefaults(t *testing.T) {
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	handler := newTestRouter(t, testConfig(), synth)

	rec := postTTS(t, handler, `{"text":"hello"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, opts := synth.snapshot()
	assert.Equal(t, "anna", opts.Voice)
	require.NotNil(t, opts.Gain)
	assert.Equal(t, 1.5, *opts.Gain)
}

func TestHandleSynthesize_BearerOverridesKey(t *testing.T) {
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	handler := newTestRouter(t, testConfig(), synth)

	rec := postTTS(t, handler, `{"text":"hello"}`, http.Header{"Authorization": {"Bearer client-key"}})
	require.Equal(t, http.StatusOK, rec.Code)

	_, _, opts := synth.snapshot()
	assert.Equal(t, "client-key", opts.APIKey)
}

func TestHandleSynthesize_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTextLength = 5

	tests := []struct {
		name         string
		body         string
		expectedCode int
		expectedErr  string
	}{
		{name: "malformed json", body: `{"text":`, expectedCode: http.StatusBadRequest, expectedErr: "invalid_request"},
		{name: "empty text", body: `{"text":"   "}`, expectedCode: http.StatusBadRequest, expectedErr: "invalid_request"},
		{name: "too long", body: `{"text":"你好你好你好"}`, expectedCode: http.StatusRequestEntityTooLarge, expectedErr: "text_too_long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &fakeSynthesizer{audio: []byte("mp3")}
			rec := postTTS(t, newTestRouter(t, cfg, synth), tt.body, nil)

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Equal(t, tt.expectedErr, decodeError(t, rec).Error)
			calls, _, _ := synth.snapshot()
			assert.Equal(t, 0, calls)
		})
	}
}

func TestHandleSynthesize_ErrorMapping(t *testing.T) {
	upstream := &tts.RequestError{
		StatusCode: 401,
		Body:       []byte(`{"message":"Invalid token"}`),
		Debug:      tts.DebugInfo{APIEndpoint: "https://api.siliconflow.cn/v1/audio/speech", VoiceModel: tts.ModelName},
	}

	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "configuration",
			err:          &tts.ConfigurationError{Field: "apiKey", Message: "API key is required"},
			expectedCode: http.StatusBadRequest,
			expectedErr:  "configuration_error",
		},
		{name: "upstream status", err: upstream, expectedCode: http.StatusBadGateway, expectedErr: "upstream_status"},
		{
			name:         "network",
			err:          &tts.RequestError{Err: errors.New("connection refused")},
			expectedCode: http.StatusBadGateway,
			expectedErr:  "upstream_unreachable",
		},
		{
			name:         "timeout",
			err:          &tts.RequestError{Err: context.DeadlineExceeded},
			expectedCode: http.StatusGatewayTimeout,
			expectedErr:  "upstream_timeout",
		},
		{name: "circuit open", err: resilience.ErrCircuitOpen, expectedCode: http.StatusServiceUnavailable, expectedErr: "circuit_open"},
		{name: "unknown", err: errors.New("boom"), expectedCode: http.StatusInternalServerError, expectedErr: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postTTS(t, newTestRouter(t, testConfig(), &fakeSynthesizer{err: tt.err}), `{"id":"r1","text":"hi"}`, nil)

			assert.Equal(t, tt.expectedCode, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.expectedErr, body.Error)
			assert.Equal(t, "r1", body.ID)
			assert.Equal(t, tt.err.Error(), body.Message)
		})
	}
}

func TestHandleSynthesize_EndToEndMissingKey(t *testing.T) {
	cfg := testConfig()
	cfg.SiliconFlowAPIKey = ""
	synth := tts.NewSiliconFlowClient(nil, zerolog.Nop())

	rec := postTTS(t, newTestRouter(t, cfg, synth), `{"text":"hi"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "configuration_error", body.Error)
	assert.Equal(t, "[SiliconFlow] API key is required", body.Message)
}

func TestHandleSynthesize_EndToEndUpstream(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3\x04audio"))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.SiliconFlowBaseURL = upstream.URL
	synth := tts.NewSiliconFlowClient(upstream.Client(), zerolog.Nop())

	rec := postTTS(t, newTestRouter(t, cfg, synth), `{"text":"hi"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3\x04audio", rec.Body.String())
	assert.Equal(t, "Bearer server-key", gotAuth)
}

func TestReadiness(t *testing.T) {
	cfg := testConfig()
	rec := httptest.NewRecorder()
	newTestRouter(t, cfg, &fakeSynthesizer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cfg = testConfig()
	cfg.SiliconFlowAPIKey = ""
	rec = httptest.NewRecorder()
	newTestRouter(t, cfg, &fakeSynthesizer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status observability.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "not_ready", status.Status)
	assert.Equal(t, "unhealthy", status.Dependencies["siliconflow"].Status)
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"Bearer abc":      "abc",
		"bearer  xyz ":    "xyz",
		"Basic dXNlcjpw":  "",
		"Bearer":          "",
		"BEARER sk-upper": "sk-upper",
	}

	for header, expected := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, expected, bearerToken(req), "header %q", header)
	}
}
