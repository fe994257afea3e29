// Package config provides configuration management for the Colab runtime
// CLI. It handles loading and parsing a YAML configuration file, overlaying
// secrets from an optional .env file, and provides structured access to
// application settings: upstream domains, history persistence, proxying,
// timeouts, and the optional history export sinks.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application's configuration, loaded from a YAML
// file and optionally overlaid with environment variables from a .env file.
type Config struct {
	// ColabAPIDomain is the base host for the Colab REST API (assignment,
	// proxy refresh, CCU/user info).
	ColabAPIDomain string `yaml:"colab-api-domain" json:"colab-api-domain"`

	// ColabGapiDomain is the base host for the GAPI-flavored endpoints that
	// report subscription tier as a string enum rather than a numeric one.
	ColabGapiDomain string `yaml:"colab-gapi-domain" json:"colab-gapi-domain"`

	// HistoryPath is the append-only JSONL execution history log.
	// Defaults to "$HOME/.colab/history.jsonl".
	HistoryPath string `yaml:"history-path" json:"history-path"`

	// AuthDir holds persisted OAuth tokens and the proxy token disk cache.
	// Defaults to "$HOME/.colab".
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// ProxyURL is the URL of an optional outbound proxy server.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// ProxyServices optionally restricts which outbound services use ProxyURL.
	//
	// When empty, ProxyURL applies to all outbound services.
	//
	// Typical values: "colab-api", "colab-gapi", "drive".
	ProxyServices []string `yaml:"proxy-services,omitempty" json:"proxy-services,omitempty"`

	// Timeouts configures per-operation deadlines.
	Timeouts TimeoutsConfig `yaml:"timeouts" json:"timeouts"`

	// KeepAlive configures the kernel WebSocket ping/pong liveness contract.
	KeepAlive KeepAliveConfig `yaml:"keep-alive" json:"keep-alive"`

	// HistorySinks configures the optional, opt-in mirrors of the history log.
	HistorySinks HistorySinksConfig `yaml:"history-sinks" json:"history-sinks"`

	// RequestLog makes the HTTP transport (4.A) attach truncated
	// request/response body snippets to its per-request debug log entry.
	// Snippets are attached when either this flag or the process-wide
	// COLAB_VERBOSE_LOGGING toggle (internal/logging.SnippetCaptureEnabled)
	// is on. This flag controls snippet content, not verbosity: the entry
	// itself is logged at debug level.
	RequestLog bool `yaml:"request-log" json:"request-log"`
}

// TimeoutsConfig holds the per-operation deadlines named in spec.md §5.
type TimeoutsConfig struct {
	// HTTPSeconds is the default per-HTTP-request timeout. Default 30.
	HTTPSeconds int `yaml:"http-seconds,omitempty" json:"http-seconds,omitempty"`

	// WebSocketConnectSeconds bounds the kernel WebSocket dial. Default 20.
	WebSocketConnectSeconds int `yaml:"websocket-connect-seconds,omitempty" json:"websocket-connect-seconds,omitempty"`
}

// KeepAliveConfig holds the kernel session's ping/pong liveness parameters.
type KeepAliveConfig struct {
	// PingIntervalSeconds is how often a ping is emitted while OPEN. Default 20.
	PingIntervalSeconds int `yaml:"ping-interval-seconds,omitempty" json:"ping-interval-seconds,omitempty"`

	// PongTimeoutSeconds is how long a missed pong is tolerated before the
	// session transitions to CLOSED with TransportLost. Default 60.
	PongTimeoutSeconds int `yaml:"pong-timeout-seconds,omitempty" json:"pong-timeout-seconds,omitempty"`
}

// HistorySinksConfig configures the optional, best-effort mirrors of the
// append-only history log (component O). All fields are opt-in; an empty
// DSN/bucket disables the corresponding sink entirely.
type HistorySinksConfig struct {
	// PostgresDSN, when set, enables the Postgres mirror.
	PostgresDSN string `yaml:"postgres-dsn,omitempty" json:"postgres-dsn,omitempty"`

	// S3Bucket, when set, enables the periodic compressed S3-compatible backup.
	S3Bucket          string `yaml:"s3-bucket,omitempty" json:"s3-bucket,omitempty"`
	S3Endpoint        string `yaml:"s3-endpoint,omitempty" json:"s3-endpoint,omitempty"`
	S3AccessKeyID     string `yaml:"s3-access-key-id,omitempty" json:"s3-access-key-id,omitempty"`
	S3SecretAccessKey string `yaml:"s3-secret-access-key,omitempty" json:"s3-secret-access-key,omitempty"`
	S3UseSSL          bool   `yaml:"s3-use-ssl,omitempty" json:"s3-use-ssl,omitempty"`
	BackupIntervalSec int    `yaml:"backup-interval-seconds,omitempty" json:"backup-interval-seconds,omitempty"`
}

// ProxyEnabledFor reports whether the global ProxyURL should be applied for
// the given upstream service name.
//
// Behavior:
//   - If ProxyURL is empty: always false.
//   - If ProxyServices is empty: true for all services.
//   - Otherwise: true only if the service is included in ProxyServices
//     (case-insensitive).
func (c *Config) ProxyEnabledFor(service string) bool {
	if c == nil {
		return false
	}
	if strings.TrimSpace(c.ProxyURL) == "" {
		return false
	}
	if len(c.ProxyServices) == 0 {
		return true
	}
	svc := strings.ToLower(strings.TrimSpace(service))
	for _, v := range c.ProxyServices {
		if strings.ToLower(strings.TrimSpace(v)) == svc {
			return true
		}
	}
	return false
}

// HTTPTimeout returns the resolved HTTP request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	if c == nil || c.Timeouts.HTTPSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeouts.HTTPSeconds) * time.Second
}

// WebSocketConnectTimeout returns the resolved kernel WebSocket dial timeout.
func (c *Config) WebSocketConnectTimeout() time.Duration {
	if c == nil || c.Timeouts.WebSocketConnectSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.Timeouts.WebSocketConnectSeconds) * time.Second
}

// PingInterval returns the resolved keep-alive ping interval.
func (c *Config) PingInterval() time.Duration {
	if c == nil || c.KeepAlive.PingIntervalSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.KeepAlive.PingIntervalSeconds) * time.Second
}

// PongTimeout returns the resolved missed-pong deadline.
func (c *Config) PongTimeout() time.Duration {
	if c == nil || c.KeepAlive.PongTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.KeepAlive.PongTimeoutSeconds) * time.Second
}

// DefaultPath returns "$HOME/.colab/config.yaml", honoring $COLAB_CONFIG when set.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv("COLAB_CONFIG")); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".colab", "config.yaml")
}

// Load reads and parses the YAML config file at path, then overlays any
// matching environment variables from a sibling ".env" file (if present)
// via godotenv — the donor's own convention for keeping secrets out of the
// tracked config file. Missing files produce sensible zero-value defaults
// rather than an error, mirroring a fresh install with no config yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: failed to load .env: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("COLAB_HISTORY_SINKS_POSTGRES_DSN")); v != "" {
		c.HistorySinks.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("COLAB_HISTORY_SINKS_S3_SECRET_ACCESS_KEY")); v != "" {
		c.HistorySinks.S3SecretAccessKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.ColabAPIDomain == "" {
		c.ColabAPIDomain = "colab.research.google.com"
	}
	if c.ColabGapiDomain == "" {
		c.ColabGapiDomain = "colab.googleapis.com"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(home, ".colab", "history.jsonl")
	}
	if c.AuthDir == "" {
		c.AuthDir = filepath.Join(home, ".colab")
	}
}

// Save writes the config back to path as YAML, creating the parent
// directory on demand.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}
