package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/siliconflow-tts/internal/config"
	"github.com/lexiqai/siliconflow-tts/internal/observability"
	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

// API serves synthesis over HTTP and WebSocket.
type API struct {
	cfg      *config.Config
	logger   zerolog.Logger
	synth    tts.Synthesizer
	defaults tts.Options
}

func NewAPI(cfg *config.Config, logger zerolog.Logger, synth tts.Synthesizer) *API {
	return &API{
		cfg:      cfg,
		logger:   logger,
		synth:    synth,
		defaults: cfg.SpeechOptions(),
	}
}

// NewRouter builds the HTTP routes. ctx bounds background work such as the
// rate limiter's visitor cleanup.
func (api *API) NewRouter(ctx context.Context, readiness map[string]observability.HealthCheckFunc) *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	if api.cfg.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(middleware.Recoverer)

	router.Get("/health", observability.HealthCheckHandler())
	router.Get("/ready", observability.ReadinessHandler(readiness))
	if api.cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: api.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", correlationHeader},
			ExposedHeaders: []string{correlationHeader},
			MaxAge:         300,
		}))
		if api.cfg.RateLimitRPS > 0 {
			r.Use(RateLimiter(ctx, api.cfg.RateLimitRPS, api.cfg.RateLimitBurst, api.logger))
		}

		r.Post("/v1/tts", api.handleSynthesize)
		r.Get("/streams/tts", api.handleStream)
	})

	return router
}

// ConfigCheck validates the SiliconFlow settings without calling the paid API.
func ConfigCheck(cfg *config.Config) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if _, _, err := tts.BuildRequest("", cfg.SpeechOptions()); err != nil {
			return false, err
		}
		return true, nil
	}
}

// bearerToken extracts the key from an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
