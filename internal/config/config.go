package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/lexiqai/siliconflow-tts/internal/tts"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML config file
const ConfigFileEnv = "TTS_CONFIG_FILE"

// Config holds all configuration for the speech gateway.
// Precedence is defaults, then the YAML file, then environment variables.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" yaml:"port"`

	// SiliconFlow TTS API configuration. The API key is not required at load
	// time; requests fail with a configuration error when it is missing.
	SiliconFlowBaseURL string  `envconfig:"SILICONFLOW_API_BASE_URL" yaml:"siliconflow_api_base_url"`
	SiliconFlowAPIKey  string  `envconfig:"SILICONFLOW_API_KEY" yaml:"siliconflow_api_key"`
	SiliconFlowVoice   string  `envconfig:"SILICONFLOW_VOICE" yaml:"siliconflow_voice"`
	SiliconFlowSpeed   float64 `envconfig:"SILICONFLOW_SPEED" yaml:"siliconflow_speed"`
	SiliconFlowGain    float64 `envconfig:"SILICONFLOW_GAIN" yaml:"siliconflow_gain"`

	// Timeout of the gateway's HTTP client; 0 leaves it unbounded
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" yaml:"upstream_timeout"`
	// Gateway-side guard on input size in runes; 0 disables
	MaxTextLength int `envconfig:"MAX_TEXT_LENGTH" yaml:"max_text_length"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" yaml:"circuit_breaker_max_failures"`   // 0 disables the breaker
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" yaml:"circuit_breaker_reset_timeout"` // seconds

	// Rate limiting per client IP; 0 disables
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" yaml:"rate_limit_rps"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" yaml:"rate_limit_burst"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	// Take the client IP from X-Forwarded-For / X-Real-IP. Enable only behind
	// a proxy that overwrites those headers.
	TrustProxy bool `envconfig:"TRUST_PROXY" yaml:"trust_proxy"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" yaml:"log_level"` // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" yaml:"log_pretty"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" yaml:"metrics_enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:                       "8080",
		SiliconFlowBaseURL:         tts.DefaultBaseURL,
		SiliconFlowVoice:           tts.DefaultVoice,
		SiliconFlowSpeed:           tts.DefaultSpeed,
		SiliconFlowGain:            tts.DefaultGain,
		UpstreamTimeout:            60 * time.Second,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		RateLimitBurst:             5,
		AllowedOrigins:             []string{"*"},
		LogLevel:                   "info",
		MetricsEnabled:             true,
	}
}

// Load reads configuration from the optional YAML file and the environment.
// It first attempts to load a .env file if one exists.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration without attempting to load a .env file
// (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads configuration from a YAML file on top of the defaults,
// ignoring the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the gateway cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must not be negative")
	}
	if c.MaxTextLength < 0 {
		return fmt.Errorf("MAX_TEXT_LENGTH must not be negative")
	}
	if c.CircuitBreakerMaxFailures < 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_MAX_FAILURES must not be negative")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}
	return nil
}

// SpeechOptions returns the configured SiliconFlow settings as the fallback
// options for every synthesis request.
func (c *Config) SpeechOptions() tts.Options {
	return tts.Options{
		APIBaseURL: c.SiliconFlowBaseURL,
		APIKey:     c.SiliconFlowAPIKey,
		Voice:      c.SiliconFlowVoice,
		Speed:      tts.Float(c.SiliconFlowSpeed),
		Gain:       tts.Float(c.SiliconFlowGain),
	}
}
