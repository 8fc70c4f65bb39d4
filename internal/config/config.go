// Package config loads the service configuration from a YAML file, an
// optional .env file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen      = "127.0.0.1:8765"
	defaultDBPath      = "events.db"
	defaultHTTPTimeout = 30 * time.Second
	defaultTaskWorkers = 5
	defaultBillStatus  = "Billable"
)

// CalendarConfig controls the week grid.
type CalendarConfig struct {
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
	Days      int    `yaml:"days"`
	Timezone  string `yaml:"timezone"`
}

// ZohoConfig holds non-secret Zoho settings. Secrets live in the credential store.
type ZohoConfig struct {
	// AccountsURL is the OAuth host, e.g. https://accounts.zoho.eu. Derived
	// from the API domain when empty.
	AccountsURL       string `yaml:"accounts_url"`
	HTTPTimeout       string `yaml:"http_timeout"`
	TaskWorkers       int    `yaml:"task_workers"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	BillStatus        string `yaml:"bill_status"`
}

// GoogleConfig enables the read-only Google Calendar source.
type GoogleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	CalendarID      string `yaml:"calendar_id"`
	MaxResults      int64  `yaml:"max_results"`
}

// ICSConfig is one subscribed ICS feed.
type ICSConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Config is the top-level configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	DBPath   string         `yaml:"db_path"`
	Calendar CalendarConfig `yaml:"calendar"`
	Zoho     ZohoConfig     `yaml:"zoho"`
	Google   GoogleConfig   `yaml:"google"`
	ICS      []ICSConfig    `yaml:"ics"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: defaultListen,
		DBPath: defaultDBPath,
		Calendar: CalendarConfig{
			StartHour: 8,
			EndHour:   19,
			Days:      5,
			Timezone:  "Local",
		},
		Zoho: ZohoConfig{
			HTTPTimeout: defaultHTTPTimeout.String(),
			TaskWorkers: defaultTaskWorkers,
			BillStatus:  defaultBillStatus,
		},
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
			CalendarID:      "primary",
			MaxResults:      50,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills zero values with defaults and clamps the calendar window.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.Calendar.StartHour < 0 || c.Calendar.StartHour > 23 {
		c.Calendar.StartHour = def.Calendar.StartHour
	}
	if c.Calendar.EndHour <= c.Calendar.StartHour || c.Calendar.EndHour > 24 {
		c.Calendar.EndHour = def.Calendar.EndHour
	}
	if c.Calendar.Days <= 0 || c.Calendar.Days > 7 {
		c.Calendar.Days = def.Calendar.Days
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = def.Calendar.Timezone
	}
	if c.Zoho.HTTPTimeout == "" {
		c.Zoho.HTTPTimeout = def.Zoho.HTTPTimeout
	}
	if c.Zoho.TaskWorkers <= 0 {
		c.Zoho.TaskWorkers = def.Zoho.TaskWorkers
	}
	if c.Zoho.RequestsPerMinute < 0 {
		c.Zoho.RequestsPerMinute = 0
	}
	if c.Zoho.BillStatus == "" {
		c.Zoho.BillStatus = def.Zoho.BillStatus
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = def.Google.CredentialsFile
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = def.Google.TokenFile
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = def.Google.CalendarID
	}
	if c.Google.MaxResults <= 0 {
		c.Google.MaxResults = def.Google.MaxResults
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// HTTPTimeout parses Zoho.HTTPTimeout, falling back to the default.
func (c *Config) HTTPTimeout() time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(c.Zoho.HTTPTimeout)); err == nil && d > 0 {
		return d
	}
	return defaultHTTPTimeout
}

// Location resolves Calendar.Timezone.
func (c *Config) Location() *time.Location {
	if c.Calendar.Timezone == "" || strings.EqualFold(c.Calendar.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		log.Printf("⚠️ Unknown timezone %q, using local time", c.Calendar.Timezone)
		return time.Local
	}
	return loc
}

// Load reads path (a missing file means defaults), loads .env if present and
// applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("⚠️ Failed to load .env: %v", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			log.Printf("📄 Config %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.Normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CALLOG_LISTEN")); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("CALLOG_DB")); v != "" {
		cfg.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CALLOG_TIMEZONE")); v != "" {
		cfg.Calendar.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv("ZOHO_ACCOUNTS_URL")); v != "" {
		cfg.Zoho.AccountsURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ZOHO_HTTP_TIMEOUT")); v != "" {
		cfg.Zoho.HTTPTimeout = v
	}
	if n, ok := envInt("ZOHO_TASK_WORKERS"); ok {
		cfg.Zoho.TaskWorkers = n
	}
	if n, ok := envInt("ZOHO_REQUESTS_PER_MINUTE"); ok {
		cfg.Zoho.RequestsPerMinute = n
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_CALENDAR_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Google.Enabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE")); v != "" {
		cfg.Google.CredentialsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_TOKEN_FILE")); v != "" {
		cfg.Google.TokenFile = v
	}
}

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ Ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return n, true
}
