// Package config loads the relay configuration from a YAML file, environment
// variables and command-line overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProfileDev     = "dev"
	ProfileRelease = "release"
)

// HistoryConfig controls replay retention.
type HistoryConfig struct {
	MaxRecords        int           `yaml:"max_records"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
}

// HubConfig controls broadcast fan-out.
type HubConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// RedisConfig enables the Redis history archive when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type Config struct {
	Profile          string        `yaml:"profile"`
	ListenAddr       string        `yaml:"listen_addr"`
	Password         string        `yaml:"password"`
	PasswordHash     string        `yaml:"password_hash"` // bcrypt
	LogFile          string        `yaml:"log_file"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"` // json or text
	MetricsAddr      string        `yaml:"metrics_addr"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	History          HistoryConfig `yaml:"history"`
	Hub              HubConfig     `yaml:"hub"`
	Redis            RedisConfig   `yaml:"redis"`
}

// Default returns the configuration for profile. Unknown profiles get the
// dev defaults.
func Default(profile string) *Config {
	cfg := &Config{
		Profile:          ProfileDev,
		ListenAddr:       "localhost:8080",
		LogLevel:         "info",
		LogFormat:        "json",
		MetricsAddr:      ":9090",
		HandshakeTimeout: 60 * time.Second,
		History: HistoryConfig{
			MaxRecords:        999,
			RetentionInterval: 3 * time.Second,
		},
		Hub: HubConfig{
			SubscriberBuffer: 8,
		},
	}
	if profile == ProfileRelease {
		cfg.Profile = ProfileRelease
		cfg.ListenAddr = "0.0.0.0:8080"
		cfg.LogFile = "./log/chat-server.log"
	}
	return cfg
}

// Load reads the YAML file at path on top of the defaults for the profile it
// names. An empty path returns the defaults for profile.
func Load(path, profile string) (*Config, error) {
	if path == "" {
		return Default(profile), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var probe struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if probe.Profile != "" {
		profile = probe.Profile
	}

	cfg := Default(profile)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from LINECHAT_* environment variables. Malformed
// numeric values are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LINECHAT_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("LINECHAT_PASSWORD"); v != "" {
		c.Password = strings.TrimSpace(v)
	}
	if v := os.Getenv("LINECHAT_PASSWORD_HASH"); v != "" {
		c.PasswordHash = v
	}
	if v := os.Getenv("LINECHAT_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("LINECHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LINECHAT_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("LINECHAT_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LINECHAT_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.HandshakeTimeout = d
		}
	}
	if v := os.Getenv("LINECHAT_HISTORY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.History.MaxRecords = n
		}
	}
	if v := os.Getenv("LINECHAT_HISTORY_RETENTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.History.RetentionInterval = d
		}
	}
	if v := os.Getenv("LINECHAT_HUB_SUBSCRIBER_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Hub.SubscriberBuffer = n
		}
	}
	if v := os.Getenv("LINECHAT_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("LINECHAT_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("LINECHAT_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("LINECHAT_REDIS_KEY"); v != "" {
		c.Redis.Key = v
	}
}

// Validate checks the configuration before any resources are allocated.
func (c *Config) Validate() error {
	switch c.Profile {
	case ProfileDev, ProfileRelease:
	default:
		return fmt.Errorf("unknown profile %q (expected %s or %s)", c.Profile, ProfileDev, ProfileRelease)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Password != "" && c.PasswordHash != "" {
		return fmt.Errorf("password and password_hash are mutually exclusive")
	}
	if c.Profile == ProfileRelease && c.Password == "" && c.PasswordHash == "" {
		return fmt.Errorf("release profile requires a password")
	}
	if c.PasswordHash != "" && !strings.HasPrefix(c.PasswordHash, "$2") {
		return fmt.Errorf("password_hash must be a bcrypt hash")
	}

	if c.History.MaxRecords <= 0 {
		return fmt.Errorf("history.max_records must be positive, got %d", c.History.MaxRecords)
	}
	if c.History.RetentionInterval <= 0 {
		return fmt.Errorf("history.retention_interval must be positive")
	}
	if c.Hub.SubscriberBuffer <= 0 {
		return fmt.Errorf("hub.subscriber_buffer must be positive, got %d", c.Hub.SubscriberBuffer)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("handshake_timeout must not be negative")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
