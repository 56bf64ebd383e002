package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries everything the service needs at construction time. There is
// no process-wide config singleton; the loaded value is passed into each
// component explicitly.
type Config struct {
	// Trading backend.
	APIBaseURL  string `yaml:"api_base_url" json:"api_base_url"`
	HTTPTimeout int    `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`
	MaxRPS      int    `yaml:"max_requests_per_second" json:"max_requests_per_second"` // 0 = unthrottled

	// Dashboard server.
	Listen string `yaml:"listen" json:"listen"`

	// Local stores.
	DataDir     string `yaml:"data_dir" json:"data_dir"`         // badger ledger store
	ArchivePath string `yaml:"archive_path" json:"archive_path"` // sqlite completed-order archive
	ObjectDir   string `yaml:"object_dir" json:"object_dir"`     // filesystem object store
	ObjectBase  string `yaml:"object_base_url" json:"object_base_url"`

	// Price feed.
	PollInterval int `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
	DebounceMs   int `yaml:"debounce_ms" json:"debounce_ms"`

	// Session identity (stand-ins for the external identity / wallet
	// providers when running headless).
	UserID        string `yaml:"user_id" json:"user_id"`
	WalletAddress string `yaml:"wallet_address" json:"wallet_address"`

	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// Load reads the config file (YAML or JSON by extension, optional) and applies
// environment overrides and defaults.
func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", filePath, err)
		}
		switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml config: %w", err)
			}
		case ".json":
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse json config: %w", err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format %q (want .yaml, .yml or .json)", ext)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.APIBaseURL, "TRADEFRONT_API_URL")
	setString(&cfg.Listen, "TRADEFRONT_LISTEN")
	setString(&cfg.DataDir, "TRADEFRONT_DATA_DIR")
	setString(&cfg.ArchivePath, "TRADEFRONT_ARCHIVE_PATH")
	setString(&cfg.ObjectDir, "TRADEFRONT_OBJECT_DIR")
	setString(&cfg.ObjectBase, "TRADEFRONT_OBJECT_BASE_URL")
	setString(&cfg.UserID, "TRADEFRONT_USER_ID")
	setString(&cfg.WalletAddress, "TRADEFRONT_WALLET_ADDRESS")
	setString(&cfg.LogLevel, "TRADEFRONT_LOG_LEVEL")
	setString(&cfg.LogFile, "TRADEFRONT_LOG_FILE")
	setInt(&cfg.HTTPTimeout, "TRADEFRONT_HTTP_TIMEOUT")
	setInt(&cfg.MaxRPS, "TRADEFRONT_MAX_RPS")
	setInt(&cfg.PollInterval, "TRADEFRONT_POLL_INTERVAL")
	setInt(&cfg.DebounceMs, "TRADEFRONT_DEBOUNCE_MS")
}

func applyDefaults(cfg *Config) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8979"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/ledger"
	}
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = "data/archive.db"
	}
	if cfg.ObjectDir == "" {
		cfg.ObjectDir = "data/objects"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60
	}
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = 100
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("api_base_url must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout_seconds must be positive")
	}
	return nil
}

// HTTPTimeoutDuration returns the gateway request timeout.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// PollIntervalDuration returns the price feed polling interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// DebounceDuration returns the subscription debounce window.
func (c *Config) DebounceDuration() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}
