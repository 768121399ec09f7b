package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	APIPort            int
	DocsURL            string
	CORSAllowedOrigins []string

	// Easee cloud configuration
	EaseeBaseURL    string
	UpstreamTimeout time.Duration

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	apiPort, err := strconv.Atoi(getEnv("API_PORT", "8000"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_PORT: %v", err)
	}

	// Zero keeps outbound calls unbounded
	upstreamTimeout, err := time.ParseDuration(getEnv("UPSTREAM_TIMEOUT", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %v", err)
	}
	if upstreamTimeout < 0 {
		return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: must not be negative")
	}

	baseURL := strings.TrimRight(getEnv("EASEE_BASE_URL", "https://api.easee.cloud/api"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("invalid EASEE_BASE_URL: must not be empty")
	}

	return &Config{
		// Server configuration
		APIPort:            apiPort,
		DocsURL:            getEnv("DOCS_URL", "/docs"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		// Easee cloud configuration
		EaseeBaseURL:    baseURL,
		UpstreamTimeout: upstreamTimeout,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

// SetupLogger configures the global logger
func (c *Config) SetupLogger() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Helper function to get environment variables with fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
