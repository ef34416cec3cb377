package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the riskplane control plane.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Oracle    OracleConfig
	Telemetry TelemetryConfig
	Decision  DecisionConfig
}

type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty = in-memory store.
	URL            string
	MaxConnections int
}

// OracleConfig configures the decision oracle (the external LLM scoring
// service every assessment call goes through).
type OracleConfig struct {
	Kind        string // openai | azure-openai | anthropic | ollama
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	// Timeout bounds one oracle call; a timeout is treated as an
	// unparseable response and triggers the degraded-mode decision.
	Timeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// DecisionConfig selects how oracle verdicts are applied.
type DecisionConfig struct {
	// Mode is "trust-oracle" (use the oracle's decision field as-is) or
	// "recompute-from-score" (re-derive it from the numeric score).
	Mode string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("RISKPLANE_PORT", 8080),
		Version: envStr("RISKPLANE_VERSION", "1.0.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Oracle: OracleConfig{
			Kind:        envStr("RISKPLANE_ORACLE_KIND", "openai"),
			Endpoint:    envStr("RISKPLANE_ORACLE_ENDPOINT", ""),
			APIKey:      envStr("RISKPLANE_ORACLE_API_KEY", ""),
			Model:       envStr("RISKPLANE_ORACLE_MODEL", "gpt-4o-mini"),
			Temperature: envFloat("RISKPLANE_ORACLE_TEMPERATURE", 0.3),
			Timeout:     envDur("RISKPLANE_ORACLE_TIMEOUT", 60*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "riskplane"),
		},
		Decision: DecisionConfig{
			Mode: envStr("RISKPLANE_DECISION_MODE", "trust-oracle"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
