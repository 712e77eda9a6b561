// Package config loads the engine's runtime settings from environment
// variables, optionally seeded from a .env file, plus an optional YAML
// file for the webhook signing-key pair — mirroring
// bronivik_crm's file-plus-override configuration pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full set of settings recognised by the engine's
// ambient stack (spec.md §6, SPEC_FULL.md §6.3).
type Config struct {
	TickInterval   time.Duration
	UsePolling     bool
	StaleThreshold time.Duration

	DatabasePath string

	WebhookBaseURL           string
	WebhookSigningKeyCurrent string
	WebhookSigningKeyNext    string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	ExternalSchedulerURL    string
	ExternalSchedulerAPIKey string

	HealthPort  int
	MetricsPort int
}

const (
	minTickInterval       = 3000 * time.Millisecond
	defaultStaleThreshold = time.Hour
)

// YAMLOverrides is the subset of configuration commonly kept out of
// plain environment variables because it is secret material — the
// signing-key pair. Loading
// it is optional; when the file is absent the environment-sourced
// values stand.
type YAMLOverrides struct {
	WebhookSigningKeyCurrent string `yaml:"webhookSigningKeyCurrent"`
	WebhookSigningKeyNext    string `yaml:"webhookSigningKeyNext"`
}

// Load reads configuration from the process environment, after first
// loading envFile (if it exists) into the environment the way the
// teacher's bot loads its token from .env. yamlFile, if non-empty and
// present, overrides the signing-key pair.
func Load(envFile, yamlFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		TickInterval:             durationMsEnv("TICK_INTERVAL_MS", 3000),
		UsePolling:               boolEnv("USE_POLLING", true),
		StaleThreshold:           durationMsEnv("STALE_THRESHOLD_MS", 3_600_000),
		DatabasePath:             stringEnv("DATABASE_PATH", "reminders.db"),
		WebhookBaseURL:           stringEnv("WEBHOOK_BASE_URL", ""),
		WebhookSigningKeyCurrent: stringEnv("WEBHOOK_SIGNING_KEY_CURRENT", ""),
		WebhookSigningKeyNext:    stringEnv("WEBHOOK_SIGNING_KEY_NEXT", ""),
		SMTPHost:                 stringEnv("SMTP_HOST", ""),
		SMTPPort:                 intEnv("SMTP_PORT", 587),
		SMTPUsername:             stringEnv("SMTP_USERNAME", ""),
		SMTPPassword:             stringEnv("SMTP_PASSWORD", ""),
		SMTPFrom:                 stringEnv("SMTP_FROM", ""),
		ExternalSchedulerURL:     stringEnv("EXTERNAL_SCHEDULER_URL", ""),
		ExternalSchedulerAPIKey:  stringEnv("EXTERNAL_SCHEDULER_API_KEY", ""),
		HealthPort:               intEnv("HEALTH_PORT", 8080),
		MetricsPort:              intEnv("METRICS_PORT", 9090),
	}

	if cfg.TickInterval < minTickInterval {
		cfg.TickInterval = minTickInterval
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = defaultStaleThreshold
	}

	if yamlFile != "" {
		if _, err := os.Stat(yamlFile); err == nil {
			if err := applyYAML(cfg, yamlFile); err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var overrides YAMLOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if overrides.WebhookSigningKeyCurrent != "" {
		cfg.WebhookSigningKeyCurrent = overrides.WebhookSigningKeyCurrent
	}
	if overrides.WebhookSigningKeyNext != "" {
		cfg.WebhookSigningKeyNext = overrides.WebhookSigningKeyNext
	}
	return nil
}

func stringEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func durationMsEnv(key string, fallbackMs int) time.Duration {
	ms := intEnv(key, fallbackMs)
	return time.Duration(ms) * time.Millisecond
}
