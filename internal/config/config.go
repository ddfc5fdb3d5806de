// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tracker store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// GmailConfig holds the mailbox being polled and how invoice emails are
// recognised within it.
type GmailConfig struct {
	UserID        string `yaml:"user_id"`
	LabelID       string `yaml:"label_id"`
	SenderFilter  string `yaml:"sender_filter"`
	SnippetFilter string `yaml:"snippet_filter"`

	// Installed-app OAuth credentials and the cached user token.
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// FormatConfig holds the three date layouts the pipeline translates between.
// All three are Go reference layouts, not strftime strings.
type FormatConfig struct {
	// MailDate parses the email Date header.
	MailDate string `yaml:"mail_date"`
	// PDFDate parses dates as printed inside the invoice PDF.
	PDFDate string `yaml:"pdf_date"`
	// LedgerDate is what the bookkeeping platform's form fields accept.
	LedgerDate string `yaml:"ledger_date"`
}

// LedgerConfig holds the bookkeeping platform session settings.
type LedgerConfig struct {
	BaseURL      string `yaml:"base_url"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	WebDriverURL string `yaml:"webdriver_url"`
}

// StorageConfig selects the tracker backend and the archive location.
type StorageConfig struct {
	Backend       string `yaml:"backend"` // file | postgres | redis
	InvoiceDir    string `yaml:"invoice_dir"`
	WatermarkFile string `yaml:"watermark_file"`
	ProcessedFile string `yaml:"processed_file"`
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
}

// AlertConfig controls the optional failure notifier.
type AlertConfig struct {
	Enabled bool   `yaml:"enabled"`
	Queue   string `yaml:"queue"`
}

// Config holds all configuration for the invoice pipeline.
type Config struct {
	Gmail   GmailConfig
	Formats FormatConfig
	Ledger  LedgerConfig
	Storage StorageConfig
	Alerts  AlertConfig

	// Poll loop
	PollInterval  time.Duration
	HTTPTimeout   time.Duration
	StrictExtract bool

	// Health endpoint (daemon mode only)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Gmail   GmailConfig   `yaml:"gmail"`
	Formats FormatConfig  `yaml:"formats"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Storage StorageConfig `yaml:"storage"`
	Alerts  AlertConfig   `yaml:"alerts"`
	Poll    struct {
		Interval      string `yaml:"interval"`
		HTTPTimeout   string `yaml:"http_timeout"`
		StrictExtract *bool  `yaml:"strict_extract"`
	} `yaml:"poll"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. Missing required values are
// a startup error — nothing else should run without them.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Gmail:         raw.Gmail,
		Formats:       raw.Formats,
		Ledger:        raw.Ledger,
		Storage:       raw.Storage,
		Alerts:        raw.Alerts,
		PollInterval:  durationOrDefault(raw.Poll.Interval, envOrDefaultDuration("POLL_INTERVAL", time.Hour)),
		HTTPTimeout:   durationOrDefault(raw.Poll.HTTPTimeout, envOrDefaultDuration("HTTP_TIMEOUT", 30*time.Second)),
		StrictExtract: true,
		Port:          envOrDefaultInt("PORT", 8080),
	}

	if raw.Poll.StrictExtract != nil {
		cfg.StrictExtract = *raw.Poll.StrictExtract
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Gmail.UserID == "" {
		cfg.Gmail.UserID = envOrDefault("GMAIL_USER_ID", "me")
	}
	if cfg.Gmail.CredentialsFile == "" {
		cfg.Gmail.CredentialsFile = envOrDefault("GMAIL_CREDENTIALS_FILE", "credentials.json")
	}
	if cfg.Gmail.TokenFile == "" {
		cfg.Gmail.TokenFile = envOrDefault("GMAIL_TOKEN_FILE", "token.json")
	}

	if cfg.Formats.MailDate == "" {
		cfg.Formats.MailDate = "Mon, 2 Jan 2006 15:04:05 -0700 (MST)"
	}
	if cfg.Formats.PDFDate == "" {
		cfg.Formats.PDFDate = "02/01/2006"
	}
	if cfg.Formats.LedgerDate == "" {
		cfg.Formats.LedgerDate = "02/01/2006"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = envOrDefault("TRACKER_BACKEND", StoreFile)
	}
	if cfg.Storage.InvoiceDir == "" {
		cfg.Storage.InvoiceDir = envOrDefault("INVOICE_DIR", "invoices")
	}
	if cfg.Storage.WatermarkFile == "" {
		cfg.Storage.WatermarkFile = envOrDefault("TRACKER_FILE", ".tracker")
	}
	if cfg.Storage.ProcessedFile == "" {
		cfg.Storage.ProcessedFile = envOrDefault("PROCESSED_EMAILS_FILE", ".processed_emails")
	}
	if cfg.Storage.RedisURL == "" {
		cfg.Storage.RedisURL = envOrDefault("REDIS_URL", "redis://localhost:6379/0")
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if cfg.Alerts.Queue == "" {
		cfg.Alerts.Queue = envOrDefault("ALERTS_QUEUE", "invoicebot:alerts")
	}
}

func validate(cfg *Config) error {
	var missing []string

	if cfg.Gmail.SenderFilter == "" {
		missing = append(missing, "gmail.sender_filter")
	}
	if cfg.Ledger.BaseURL == "" {
		missing = append(missing, "ledger.base_url")
	}
	if cfg.Ledger.Username == "" {
		missing = append(missing, "ledger.username")
	}
	if cfg.Ledger.Password == "" {
		missing = append(missing, "ledger.password")
	}
	if cfg.Ledger.WebDriverURL == "" {
		missing = append(missing, "ledger.webdriver_url")
	}

	switch cfg.Storage.Backend {
	case StoreFile, StoreRedis:
	case StorePostgres:
		if cfg.Storage.DatabaseURL == "" {
			missing = append(missing, "storage.database_url")
		}
	default:
		return fmt.Errorf("invalid storage backend %q (want file, postgres or redis)", cfg.Storage.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOrDefault(v string, fallback time.Duration) time.Duration {
	if v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
