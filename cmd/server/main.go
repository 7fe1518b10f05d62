package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/siliconflow-tts/internal/api"
	"github.com/lexiqai/siliconflow-tts/internal/config"
	"github.com/lexiqai/siliconflow-tts/internal/observability"
	"github.com/lexiqai/siliconflow-tts/internal/resilience"
	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("endpoint", tts.NormalizeBaseURL(cfg.SiliconFlowBaseURL)).
		Str("voice", cfg.SiliconFlowVoice).
		Bool("api_key_configured", cfg.SiliconFlowAPIKey != "").
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("SiliconFlow TTS gateway starting")

	// Readiness only validates config; a real synthesis call would cost money
	readiness := map[string]observability.HealthCheckFunc{
		"siliconflow": api.ConfigCheck(cfg),
	}

	var synth tts.Synthesizer = tts.NewSiliconFlowClient(&http.Client{Timeout: cfg.UpstreamTimeout}, logger)
	if cfg.CircuitBreakerMaxFailures > 0 {
		breaker := resilience.NewCircuitBreaker(
			"siliconflow",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		)
		guarded := resilience.NewBreakerSynthesizer(synth, breaker)
		readiness["circuit_breaker"] = func(ctx context.Context) (bool, error) {
			if state := guarded.State(); state == resilience.StateOpen {
				return false, fmt.Errorf("circuit %s", state)
			}
			return true, nil
		}
		synth = guarded
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := api.NewAPI(cfg, logger, synth).NewRouter(ctx, readiness)

	// WriteTimeout is left unset: synthesis can outlast any fixed bound and is
	// governed by UPSTREAM_TIMEOUT instead.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("http_endpoint", fmt.Sprintf("http://localhost:%s/v1/tts", cfg.Port)).
			Str("stream_endpoint", fmt.Sprintf("ws://localhost:%s/streams/tts", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
