// Package config loads the task-scoped Config passed explicitly into
// solve(), plus the ambient service configuration for cmd/server. Both
// follow the env-var + godotenv loading style of the teacher's own
// internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// SolveConfig is the full configuration surface of one solve() call
// (spec.md §6.3): an explicit, immutable value injected into the control
// loop rather than read from global state.
type SolveConfig struct {
	MaxEvents              int
	MaxRounds              int
	Kappa                  float64 // belief threshold
	EpsilonEIG             float64 // minimum EIG to keep going
	TauC                   float64 // critic admission threshold
	TemperatureBaseCode    float64
	TemperatureBaseNonCode float64
	TemperatureMax         float64
	TemperatureStep        float64
	MaxBacktracks          int
	DebuggerBudgetPerRound int
	DifficultyHint         string // "" lets the Analyzer decide
	RoundTimeout           time.Duration
	ExecutorTimeout        time.Duration
}

// DefaultSolveConfig returns spec.md's stated defaults.
func DefaultSolveConfig() SolveConfig {
	return SolveConfig{
		MaxEvents:              20,
		MaxRounds:              40,
		Kappa:                  0.92,
		EpsilonEIG:             0.015,
		TauC:                   0.6,
		TemperatureBaseCode:    0.1,
		TemperatureBaseNonCode: 0.2,
		TemperatureMax:         0.7,
		TemperatureStep:        0.05,
		MaxBacktracks:          3,
		DebuggerBudgetPerRound: 1,
		RoundTimeout:           2 * time.Minute,
		ExecutorTimeout:        30 * time.Second,
	}
}

// ServiceConfig is the ambient configuration for cmd/server: how it binds,
// logs, and which default capability clients it wires.
type ServiceConfig struct {
	Server  ServerConfig
	Logging LoggingConfig
	LLM     LLMConfig
	Auth    AuthConfig
}

// ServerConfig holds HTTP bind/timeout settings.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// LLMConfig holds the default LLM client's configuration.
type LLMConfig struct {
	APIKey string
	Model  string
}

// AuthConfig holds the harness bearer-token guard's configuration.
type AuthConfig struct {
	JWTSecret string
}

// Load loads the ServiceConfig from environment variables.
func Load() (*ServiceConfig, error) {
	godotenv.Load()

	cfg := &ServiceConfig{
		Server: ServerConfig{
			Port:            getEnvAsInt("INFERENCE_PORT", 8686),
			Host:            getEnv("INFERENCE_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("INFERENCE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("INFERENCE_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("INFERENCE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("INFERENCE_LOG_LEVEL", "info"),
			Format: getEnv("INFERENCE_LOG_FORMAT", "json"),
		},
		LLM: LLMConfig{
			APIKey: getEnv("INFERENCE_LLM_API_KEY", ""),
			Model:  getEnv("INFERENCE_LLM_MODEL", "gpt-4o-mini"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("INFERENCE_JWT_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate validates the service configuration.
func (c *ServiceConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
