// Package config loads the HLS proxy's configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// SigningMode selects how the proxy exposes origin URLs to clients.
type SigningMode string

const (
	// SigningModePassthrough embeds the origin URL directly in the ?url= query parameter.
	SigningModePassthrough SigningMode = "passthrough"
	// SigningModeHandle mints an opaque signed handle that resolves server-side.
	SigningModeHandle SigningMode = "handle"
)

// Config holds all configuration for the proxy.
type Config struct {
	// Server
	BaseURL string
	Port    string

	// CORS
	AllowedOrigins []string

	// Security
	SigningSecret     string
	SignatureValidity time.Duration
	SigningMode       SigningMode

	// DefaultReferer is read from DEFAULT_REFERER; the request pipeline does
	// not use it, so a request without ?ref= is fetched with no Referer
	DefaultReferer string

	// Storage
	RedisURL    string
	DatabaseURL string // optional, enables the durable scraper-cache tier

	// TTLs
	PlaylistTTL time.Duration
	SegmentTTL  time.Duration
	ScraperTTL  time.Duration
	HandleTTL   time.Duration

	// Scraper defaults (spec open question: single source of truth)
	DefaultCategory string
	DefaultServer   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  splitCSV(getEnv("CORS_ORIGINS", "*")),
		SigningSecret:   getEnv("SIGNING_SECRET", ""),
		SigningMode:     SigningMode(getEnv("SIGNING_MODE", string(SigningModePassthrough))),
		DefaultReferer:  getEnv("DEFAULT_REFERER", ""),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DefaultCategory: getEnv("DEFAULT_CATEGORY", "sub"),
		DefaultServer:   getEnv("DEFAULT_SERVER", "hd-1"),
	}

	var err error
	cfg.SignatureValidity, err = time.ParseDuration(getEnv("SIGNATURE_VALIDITY", "600s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNATURE_VALIDITY: %w", err)
	}
	cfg.PlaylistTTL, err = time.ParseDuration(getEnv("PLAYLIST_TTL", "12s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLAYLIST_TTL: %w", err)
	}
	cfg.SegmentTTL, err = time.ParseDuration(getEnv("SEGMENT_TTL", "86400s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEGMENT_TTL: %w", err)
	}
	cfg.ScraperTTL, err = time.ParseDuration(getEnv("SCRAPER_TTL", "1800s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_TTL: %w", err)
	}
	cfg.HandleTTL, err = time.ParseDuration(getEnv("HANDLE_TTL", "600s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HANDLE_TTL: %w", err)
	}

	if cfg.SigningMode == SigningModeHandle && cfg.SigningSecret == "" {
		return nil, fmt.Errorf("SIGNING_SECRET is required when SIGNING_MODE=handle")
	}

	if os.Getenv("ENV") == "production" && strings.Contains(cfg.BaseURL, "localhost") {
		return nil, fmt.Errorf("BASE_URL contains 'localhost' but ENV=production; set BASE_URL to your public domain")
	}

	return cfg, nil
}

// LoadWithDefaults loads config with sensible defaults for local development.
// Use this only when Load fails and a degraded dev run is acceptable.
func LoadWithDefaults() *Config {
	cfg, err := Load()
	if err == nil {
		return cfg
	}
	return &Config{
		BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    splitCSV(getEnv("CORS_ORIGINS", "*")),
		SigningSecret:     getEnv("SIGNING_SECRET", "dev-signing-secret-change-in-production"),
		SigningMode:       SigningModePassthrough,
		DefaultReferer:    getEnv("DEFAULT_REFERER", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SignatureValidity: 600 * time.Second,
		PlaylistTTL:       12 * time.Second,
		SegmentTTL:        86400 * time.Second,
		ScraperTTL:        1800 * time.Second,
		HandleTTL:         600 * time.Second,
		DefaultCategory:   "sub",
		DefaultServer:     "hd-1",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
