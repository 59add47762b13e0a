package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	health "fleet-risk-engine/internal/health/domain"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Scoring holds the health score thresholds and the recompute fan-out.
type Scoring struct {
	health.Thresholds    `yaml:",inline"`
	RecomputeConcurrency int `yaml:"recompute_concurrency"`
}

// Scheduler holds slot allocation settings.
type Scheduler struct {
	MaxCASAttempts int           `yaml:"max_cas_attempts"`
	UrgentWindow   time.Duration `yaml:"urgent_window"`
	SweepWindow    time.Duration `yaml:"sweep_window"`
	DefaultTime    string        `yaml:"default_time"`
	// SweepInterval runs the auto-scheduling sweep periodically; zero disables it.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Store selects the signal store backend.
type Store struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	FixturePath string `yaml:"fixture_path"`
}

// NATS configures outbound domain events. An empty URL disables publishing.
type NATS struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Notify configures owner notifications. An empty WebhookURL disables them.
type Notify struct {
	WebhookURL string        `yaml:"webhook_url"`
	Template   string        `yaml:"template"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

// Assistant configures the conversational responder.
type Assistant struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Config is the service configuration.
type Config struct {
	HTTPAddr  string    `yaml:"http_addr"`
	LogLevel  string    `yaml:"log_level"`
	LogFormat string    `yaml:"log_format"`
	JWTSecret string    `yaml:"jwt_secret"`
	Store     Store     `yaml:"store"`
	Scoring   Scoring   `yaml:"scoring"`
	Scheduler Scheduler `yaml:"scheduler"`
	NATS      NATS      `yaml:"nats"`
	Assistant Assistant `yaml:"assistant"`
	Notify    Notify    `yaml:"notify"`
}

// DefaultScoring returns the built-in scoring settings.
func DefaultScoring() Scoring {
	return Scoring{
		Thresholds:           health.DefaultThresholds(),
		RecomputeConcurrency: 4,
	}
}

// DefaultScheduler returns the built-in scheduler settings.
func DefaultScheduler() Scheduler {
	return Scheduler{
		MaxCASAttempts: 5,
		UrgentWindow:   48 * time.Hour,
		SweepWindow:    7 * 24 * time.Hour,
		DefaultTime:    "09:00",
	}
}

// Load reads env defaults and overlays the YAML file named by FLEET_CONFIG.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:  getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:  getenvDefault("LOG_LEVEL", "info"),
		LogFormat: getenvDefault("LOG_FORMAT", "json"),
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		Store: Store{
			Driver:      getenvDefault("FLEET_STORE", StoreMemory),
			DSN:         getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")),
			FixturePath: os.Getenv("FLEET_FIXTURE"),
		},
		Scoring:   DefaultScoring(),
		Scheduler: DefaultScheduler(),
		NATS: NATS{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: getenvDefault("NATS_SUBJECT_PREFIX", "fleet"),
		},
		Assistant: Assistant{
			Endpoint: getenvDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:    getenvDefault("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:   os.Getenv("OPENAI_API_KEY"),
			Timeout:  getenvDurationDefault("OPENAI_TIMEOUT", 30*time.Second),
		},
		Notify: Notify{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
			Cooldown:   getenvDurationDefault("NOTIFY_COOLDOWN", 10*time.Minute),
		},
	}
	cfg.Scheduler.MaxCASAttempts = getenvIntDefault("SCHEDULER_MAX_CAS_ATTEMPTS", cfg.Scheduler.MaxCASAttempts)
	cfg.Scheduler.SweepInterval = getenvDurationDefault("SCHEDULER_SWEEP_INTERVAL", 0)

	if path := os.Getenv("FLEET_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("config: postgres store requires a dsn")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Scheduler.MaxCASAttempts <= 0 {
		return errors.New("config: scheduler.max_cas_attempts must be positive")
	}
	if c.Scheduler.UrgentWindow < 0 || c.Scheduler.SweepWindow <= 0 || c.Scheduler.SweepInterval < 0 {
		return errors.New("config: scheduler windows must be positive")
	}
	if c.Notify.Cooldown < 0 {
		return errors.New("config: notify.cooldown must not be negative")
	}
	if _, err := time.Parse("15:04", c.Scheduler.DefaultTime); err != nil {
		return fmt.Errorf("config: scheduler.default_time: %w", err)
	}
	return c.Scoring.Validate()
}

// Validate checks thresholds and concurrency.
func (s Scoring) Validate() error {
	if err := s.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config: scoring: %w", err)
	}
	if s.RecomputeConcurrency <= 0 {
		return errors.New("config: scoring.recompute_concurrency must be positive")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
