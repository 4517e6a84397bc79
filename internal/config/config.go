package config

import (
	"fmt"
	"os"
)

type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	FeedBaseURL   string
	LookupBaseURL string
	LogLevel      string
	LogFormat     string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		FeedBaseURL:   getEnv("FEED_BASE_URL", ""),
		LookupBaseURL: getEnv("LOOKUP_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.FeedBaseURL == "" {
		return nil, fmt.Errorf("FEED_BASE_URL is required")
	}
	if cfg.LookupBaseURL == "" {
		return nil, fmt.Errorf("LOOKUP_BASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
