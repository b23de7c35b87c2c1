package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RoutingConfig controls the decision engine.
type RoutingConfig struct {
	Enabled             bool    `yaml:"enabled"`
	ComplexityThreshold int     `yaml:"complexity_threshold"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// FallbackConfig controls dispatch fallback behavior.
type FallbackConfig struct {
	Enabled       bool `yaml:"enabled"`
	TimeoutMs     int  `yaml:"timeout_ms"`
	RetryAttempts int  `yaml:"retry_attempts"`
}

// MonitoringConfig controls metrics collection.
type MonitoringConfig struct {
	Enabled           bool `yaml:"enabled"`
	MetricsIntervalMs int  `yaml:"metrics_interval_ms"`
}

// ServicesConfig points at downstream collaborators.
type ServicesConfig struct {
	LegacyHandlerURL string `yaml:"legacy_handler_url"`
	CacheURL         string `yaml:"cache_url"`
	MaxRetries       int    `yaml:"max_retries"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

// Config is the full coordinator configuration. It is loaded once at startup
// and only ever replaced as a whole snapshot, never mutated in place.
type Config struct {
	Routing    RoutingConfig    `yaml:"routing"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Services   ServicesConfig   `yaml:"services"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Routing: RoutingConfig{
			Enabled:             false,
			ComplexityThreshold: 50,
			ConfidenceThreshold: 0.7,
		},
		Fallback: FallbackConfig{
			Enabled:       true,
			TimeoutMs:     30000,
			RetryAttempts: 2,
		},
		Monitoring: MonitoringConfig{
			Enabled:           true,
			MetricsIntervalMs: 60000,
		},
		Services: ServicesConfig{
			LegacyHandlerURL: "http://localhost:3000",
			CacheURL:         "",
			MaxRetries:       3,
			RequestTimeoutMs: 30000,
		},
	}
}

// ConfigurationError carries every violated invariant found by Validate.
type ConfigurationError struct {
	Violations []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Violations, "; "))
}

// Validate checks every numeric bound and returns the full list of
// violations. An empty list means the configuration is valid.
func Validate(cfg Config) []string {
	var violations []string
	if cfg.Routing.ComplexityThreshold < 1 {
		violations = append(violations, "routing.complexity_threshold must be >= 1")
	}
	if cfg.Routing.ConfidenceThreshold < 0 || cfg.Routing.ConfidenceThreshold > 1 {
		violations = append(violations, "routing.confidence_threshold must be within [0, 1]")
	}
	if cfg.Fallback.TimeoutMs < 1000 {
		violations = append(violations, "fallback.timeout_ms must be >= 1000")
	}
	if cfg.Fallback.RetryAttempts < 0 {
		violations = append(violations, "fallback.retry_attempts must be >= 0")
	}
	if cfg.Services.MaxRetries < 0 {
		violations = append(violations, "services.max_retries must be >= 0")
	}
	if cfg.Services.RequestTimeoutMs < 1000 {
		violations = append(violations, "services.request_timeout_ms must be >= 1000")
	}
	if cfg.Services.LegacyHandlerURL == "" {
		violations = append(violations, "services.legacy_handler_url must be set")
	}
	return violations
}

// Store holds the process-wide configuration snapshot. Readers always see a
// complete snapshot; Update swaps the whole value atomically.
type Store struct {
	snap atomic.Pointer[Config]
}

// NewStore creates a store seeded with the given configuration.
func NewStore(cfg Config) *Store {
	s := &Store{}
	s.snap.Store(&cfg)
	return s
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file configuration, and every
// missing field falls back to its default. Load never fails on missing
// optional values; bound violations only surface through Validate.
func Load() (*Store, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TASKGATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return NewStore(cfg), nil
}

// Get returns a copy of the current snapshot. Callers cannot mutate the
// shared state through it.
func (s *Store) Get() Config {
	return *s.snap.Load()
}

// Validate checks the current snapshot.
func (s *Store) Validate() error {
	if violations := Validate(s.Get()); len(violations) > 0 {
		return &ConfigurationError{Violations: violations}
	}
	return nil
}

// Update applies a partial change to a copy of the current snapshot and
// replaces it atomically. Concurrent readers never observe a partial write.
func (s *Store) Update(apply func(*Config)) Config {
	next := s.Get()
	apply(&next)
	s.snap.Store(&next)
	return next
}

// Sanitized returns a configuration summary safe to expose over HTTP.
// Connection strings are redacted, never shown verbatim.
func (s *Store) Sanitized() map[string]any {
	cfg := s.Get()
	return map[string]any{
		"routing": map[string]any{
			"enabled":              cfg.Routing.Enabled,
			"complexity_threshold": cfg.Routing.ComplexityThreshold,
			"confidence_threshold": cfg.Routing.ConfidenceThreshold,
		},
		"fallback": map[string]any{
			"enabled":        cfg.Fallback.Enabled,
			"timeout_ms":     cfg.Fallback.TimeoutMs,
			"retry_attempts": cfg.Fallback.RetryAttempts,
		},
		"monitoring": map[string]any{
			"enabled":             cfg.Monitoring.Enabled,
			"metrics_interval_ms": cfg.Monitoring.MetricsIntervalMs,
		},
		"services": map[string]any{
			"legacy_handler_url": redact(cfg.Services.LegacyHandlerURL),
			"cache_url":          redact(cfg.Services.CacheURL),
			"max_retries":        cfg.Services.MaxRetries,
			"request_timeout_ms": cfg.Services.RequestTimeoutMs,
		},
	}
}

func redact(value string) string {
	if value == "" {
		return "[NOT SET]"
	}
	return "[CONFIGURED]"
}

func applyEnv(cfg *Config) {
	setBool(&cfg.Routing.Enabled, "ROUTING_ENABLED")
	setInt(&cfg.Routing.ComplexityThreshold, "COMPLEXITY_THRESHOLD")
	setFloat(&cfg.Routing.ConfidenceThreshold, "CONFIDENCE_THRESHOLD")

	setBool(&cfg.Fallback.Enabled, "FALLBACK_ENABLED")
	setInt(&cfg.Fallback.TimeoutMs, "FALLBACK_TIMEOUT_MS")
	setInt(&cfg.Fallback.RetryAttempts, "RETRY_ATTEMPTS")

	setBool(&cfg.Monitoring.Enabled, "MONITORING_ENABLED")
	setInt(&cfg.Monitoring.MetricsIntervalMs, "METRICS_INTERVAL_MS")

	setString(&cfg.Services.LegacyHandlerURL, "LEGACY_HANDLER_URL")
	setString(&cfg.Services.CacheURL, "CACHE_URL")
	setInt(&cfg.Services.MaxRetries, "MAX_RETRIES")
	setInt(&cfg.Services.RequestTimeoutMs, "REQUEST_TIMEOUT_MS")
}

func setString(dst *string, envVar string) {
	if val := os.Getenv(envVar); val != "" {
		*dst = val
	}
}

func setBool(dst *bool, envVar string) {
	if val := os.Getenv(envVar); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, envVar string) {
	if val := os.Getenv(envVar); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, envVar string) {
	if val := os.Getenv(envVar); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = parsed
		}
	}
}
