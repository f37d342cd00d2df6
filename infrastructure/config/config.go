// Package config loads process configuration from the environment, with
// an optional YAML file for the per-session deliberation defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domaincfg "agora-backend/domain/config"
)

// Config holds all process-level configuration
type Config struct {
	Environment string
	LogLevel    string

	Server        ServerConfig
	CORS          CORSConfig
	Persistence   PersistenceConfig
	Collaborators CollaboratorsConfig
	Metrics       MetricsConfig

	// SessionDefaultsFile optionally points at a YAML file of session
	// tunable overrides
	SessionDefaultsFile string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// PersistenceConfig holds snapshot journal settings
type PersistenceConfig struct {
	Enabled       bool
	Path          string
	FlushInterval time.Duration
}

// CollaboratorsConfig holds external service settings
type CollaboratorsConfig struct {
	OpenAIAPIKey   string
	EntropyBaseURL string
	RequestTimeout time.Duration
}

// MetricsConfig holds metrics exposition settings
type MetricsConfig struct {
	Namespace string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Persistence: PersistenceConfig{
			Enabled:       getEnvBool("PERSISTENCE_ENABLED", true),
			Path:          getEnv("PERSISTENCE_PATH", "./data/agora"),
			FlushInterval: getEnvDuration("PERSISTENCE_FLUSH_INTERVAL", time.Second),
		},
		Collaborators: CollaboratorsConfig{
			OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
			EntropyBaseURL: getEnv("ENTROPY_SERVICE_URL", ""),
			RequestTimeout: getEnvDuration("COLLABORATOR_TIMEOUT", 10*time.Second),
		},
		Metrics: MetricsConfig{
			Namespace: getEnv("METRICS_NAMESPACE", "agora"),
		},
		SessionDefaultsFile: getEnv("SESSION_DEFAULTS_FILE", ""),
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Persistence.Enabled && c.Persistence.Path == "" {
		return fmt.Errorf("persistence enabled but no path configured")
	}
	return nil
}

// IsProduction reports whether the process runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SessionDefaults returns the session tunables, merged with the YAML
// overrides file when one is configured
func (c *Config) SessionDefaults() (*domaincfg.SessionConfig, error) {
	defaults := domaincfg.DefaultSessionConfig()
	if c.SessionDefaultsFile == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(c.SessionDefaultsFile)
	if err != nil {
		return nil, fmt.Errorf("read session defaults file: %w", err)
	}

	var overrides domaincfg.Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse session defaults file: %w", err)
	}
	return defaults.Apply(&overrides), nil
}

// Environment variable helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
