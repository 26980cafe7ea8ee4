package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Database  DatabaseConfig  `yaml:"database"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Debug     bool            `yaml:"debug"`
}

// ProjectConfig is the service info returned by GET /.
type ProjectConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	URL      string `yaml:"url"`       // file path for sqlite, postgres:// for postgres
	PoolSize int    `yaml:"pool_size"` // max open connections
}

// Driver returns the database/sql driver name implied by URL.
func (d DatabaseConfig) Driver() string {
	if strings.HasPrefix(d.URL, "postgres://") || strings.HasPrefix(d.URL, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

// MonitorConfig configures the uptime probe.
type MonitorConfig struct {
	WebsiteURL string `yaml:"website_url"`
	Frequency  int    `yaml:"frequency"` // minutes between probes
	Timeout    string `yaml:"timeout"`
}

// ParseTimeout returns the probe timeout as time.Duration.
func (m MonitorConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(m.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// SchedulerConfig selects how the probe is triggered.
type SchedulerConfig struct {
	Backend   string `yaml:"backend"` // "local" or "broker"
	BrokerURL string `yaml:"broker_url"`
	Queue     string `yaml:"queue"`
}

// SnapshotConfig configures the optional periodic pipelines.json fetch.
type SnapshotConfig struct {
	URL      string `yaml:"url"`
	Interval string `yaml:"interval"`
}

// ParseInterval returns the snapshot interval, or 0 when fetching is disabled.
func (s SnapshotConfig) ParseInterval() time.Duration {
	if s.URL == "" {
		return 0
	}
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// AlertsConfig configures probe-failure alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int   `yaml:"port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:        "nf-core stats",
			Version:     "0.1.0",
			Description: "Statistics and uptime monitoring for the nf-core pipeline ecosystem",
		},
		Database: DatabaseConfig{URL: "./nfstats.db", PoolSize: 3},
		Monitor: MonitorConfig{
			WebsiteURL: "https://nf-co.re",
			Frequency:  1,
			Timeout:    "10s",
		},
		Scheduler: SchedulerConfig{
			Backend:   "local",
			BrokerURL: "redis://localhost:6379/0",
			Queue:     "main-queue",
		},
		Snapshot: SnapshotConfig{Interval: "1h"},
		Server:   ServerConfig{Port: 8000, MaxBodyBytes: 64 << 20},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Validate reports configuration that cannot start the service.
func (c *Config) Validate() error {
	if c.Monitor.WebsiteURL == "" {
		return fmt.Errorf("monitor.website_url must be configured")
	}
	if c.Monitor.Frequency < 1 {
		return fmt.Errorf("monitor.frequency must be at least 1 minute (got %d)", c.Monitor.Frequency)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url must be configured")
	}
	switch c.Scheduler.Backend {
	case "local", "broker":
	default:
		return fmt.Errorf("scheduler.backend must be \"local\" or \"broker\" (got %q)", c.Scheduler.Backend)
	}
	if c.Scheduler.Backend == "broker" && c.Scheduler.BrokerURL == "" {
		return fmt.Errorf("scheduler.broker_url is required for the broker backend")
	}
	return nil
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with NFCORE_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("NFCORE_WEBSITE_URL"); v != "" {
		cfg.Monitor.WebsiteURL = v
	}
	if v := os.Getenv("NFCORE_FREQUENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse NFCORE_FREQUENCY: %w", err)
		}
		cfg.Monitor.Frequency = n
	}
	if v := os.Getenv("NFCORE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("NFCORE_DATABASE_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse NFCORE_DATABASE_POOL_SIZE: %w", err)
		}
		cfg.Database.PoolSize = n
	}
	if v := os.Getenv("NFCORE_BROKER_URL"); v != "" {
		cfg.Scheduler.BrokerURL = v
	}
	if v := os.Getenv("NFCORE_SCHEDULER_BACKEND"); v != "" {
		cfg.Scheduler.Backend = v
	}
	if v := os.Getenv("NFCORE_SNAPSHOT_URL"); v != "" {
		cfg.Snapshot.URL = v
	}
	if v := os.Getenv("NFCORE_SNAPSHOT_INTERVAL"); v != "" {
		cfg.Snapshot.Interval = v
	}
	if v := os.Getenv("NFCORE_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse NFCORE_PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	if v := os.Getenv("NFCORE_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse NFCORE_DEBUG: %w", err)
		}
		cfg.Debug = b
	}
	if v := os.Getenv("NFCORE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NFCORE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("NFCORE_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("NFCORE_ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	return nil
}
