package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		BaseURL  string `yaml:"base_url"`
		Timezone string `yaml:"timezone"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Push struct {
		VAPIDPublicKey  string `yaml:"vapid_public_key"`
		VAPIDPrivateKey string `yaml:"vapid_private_key"`
		Subscriber      string `yaml:"subscriber"`
		TTLSeconds      int    `yaml:"ttl_seconds"`
		Urgency         string `yaml:"urgency"`
	} `yaml:"push"`

	Email struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		FromName string `yaml:"from_name"`
	} `yaml:"email"`

	Schedule struct {
		Due    string `yaml:"due"`
		Digest string `yaml:"digest"`
		Export string `yaml:"export"`
		Backup string `yaml:"backup"`
	} `yaml:"schedule"`

	Dispatch struct {
		Workers       int     `yaml:"workers"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
		SnoozeMinutes int     `yaml:"snooze_minutes"`
	} `yaml:"dispatch"`

	Digest struct {
		LookaheadHours int    `yaml:"lookahead_hours"`
		LookbackHours  int    `yaml:"lookback_hours"`
		MaxEntries     int    `yaml:"max_entries"`
		Subject        string `yaml:"subject"`
	} `yaml:"digest"`

	HTTP struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"http"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		ExportDir     string `yaml:"export_dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`
}

// Load reads the YAML config at path. Variables from a .env file next to the
// working directory are loaded first so ${VAR} placeholders can reference them.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/recall.db"
	}
	if c.Redis.CacheTTLSeconds <= 0 {
		c.Redis.CacheTTLSeconds = 300
	}
	if c.Push.TTLSeconds <= 0 {
		c.Push.TTLSeconds = 3600
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if c.Schedule.Due == "" {
		c.Schedule.Due = "@every 1m"
	}
	if c.Schedule.Digest == "" {
		c.Schedule.Digest = "0 8 * * *"
	}
	if c.Schedule.Export == "" {
		c.Schedule.Export = "5 0 1 * *"
	}
	if c.Schedule.Backup == "" {
		c.Schedule.Backup = "0 3 * * *"
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 10
	}
	if c.Dispatch.RatePerSecond == 0 {
		c.Dispatch.RatePerSecond = 20
	}
	if c.Dispatch.Burst <= 0 {
		c.Dispatch.Burst = 30
	}
	if c.Digest.MaxEntries <= 0 {
		c.Digest.MaxEntries = 10
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Audit.ExportDir == "" {
		c.Audit.ExportDir = "data/exports"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 90
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	var errs []error

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("app.timezone: %w", err))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule.due":    c.Schedule.Due,
		"schedule.digest": c.Schedule.Digest,
		"schedule.export": c.Schedule.Export,
		"schedule.backup": c.Schedule.Backup,
	} {
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("push: both vapid keys must be set, or neither"))
	}

	return errors.Join(errs...)
}

// PushConfigured reports whether push signing keys are present.
func (c *Config) PushConfigured() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}

// EmailConfigured reports whether an SMTP relay is configured.
func (c *Config) EmailConfigured() bool {
	return c.Email.Host != "" && c.Email.From != ""
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) Snooze() time.Duration {
	if c.Dispatch.SnoozeMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Dispatch.SnoozeMinutes) * time.Minute
}

func (c *Config) DigestLookahead() time.Duration {
	if c.Digest.LookaheadHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Digest.LookaheadHours) * time.Hour
}

func (c *Config) DigestLookback() time.Duration {
	if c.Digest.LookbackHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Digest.LookbackHours) * time.Hour
}
