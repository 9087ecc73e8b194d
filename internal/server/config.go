// Package server provides configuration helpers that define runtime defaults
// and validation for the streams service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the optional per-connection echo throttle.
// A Burst of zero disables throttling.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Port              string
	StreamsPrefix     string
	StaticDir         string
	BroadcastInterval time.Duration
	AllowedOrigins    []string
	RegisterOnConnect bool
	RateLimit         RateLimitConfig
	HeartbeatDelay    time.Duration
	DisconnectDelay   time.Duration
	LogLevel          string
	ShutdownTimeout   time.Duration
}

func defaultConfig() Config {
	return Config{
		Port:              ":8080",
		StreamsPrefix:     "/streams",
		StaticDir:         "webroot",
		BroadcastInterval: time.Second,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		HeartbeatDelay:  25 * time.Second,
		DisconnectDelay: 5 * time.Second,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitize returns a copy of cfg with every unset or invalid field replaced
// by its default.
func (cfg Config) Sanitize() Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}

	cfg.StreamsPrefix = "/" + strings.Trim(cfg.StreamsPrefix, "/ ")
	if cfg.StreamsPrefix == "/" {
		cfg.StreamsPrefix = def.StreamsPrefix
	}

	if cfg.StaticDir == "" {
		cfg.StaticDir = def.StaticDir
	}

	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = def.BroadcastInterval
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	if cfg.HeartbeatDelay <= 0 {
		cfg.HeartbeatDelay = def.HeartbeatDelay
	}
	if cfg.DisconnectDelay <= 0 {
		cfg.DisconnectDelay = def.DisconnectDelay
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if prefix := os.Getenv("STREAMS_PREFIX"); prefix != "" {
		cfg.StreamsPrefix = prefix
	}

	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	if interval := os.Getenv("BROADCAST_INTERVAL_MS"); interval != "" {
		cfg.BroadcastInterval = parseMillis(interval, cfg.BroadcastInterval)
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if eager := os.Getenv("REGISTER_ON_CONNECT"); eager != "" {
		cfg.RegisterOnConnect = parseBool(eager, cfg.RegisterOnConnect)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if delay := os.Getenv("HEARTBEAT_DELAY_MS"); delay != "" {
		cfg.HeartbeatDelay = parseMillis(delay, cfg.HeartbeatDelay)
	}

	if delay := os.Getenv("DISCONNECT_DELAY_MS"); delay != "" {
		cfg.DisconnectDelay = parseMillis(delay, cfg.DisconnectDelay)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(level))
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseMillis(value string, defaultValue time.Duration) time.Duration {
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
