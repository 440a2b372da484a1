// Package config provides TOML configuration file loading for the frontend.
// The configuration file lives at ~/.bazed/frontend.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	apperrors "github.com/bazed/frontend/internal/errors"
)

// Config represents the frontend configuration file structure.
type Config struct {
	// Addr is the host:port of the editing backend.
	// Default: 127.0.0.1:6969
	Addr string `toml:"addr"`

	// Path is the WebSocket endpoint path on the backend.
	// Default: /
	Path string `toml:"path"`

	// RequestTimeoutMs bounds how long a view open waits for its response.
	// Default: 0 (wait until the session closes)
	RequestTimeoutMs int `toml:"request_timeout_ms"`

	// Reconnect selects the reconnect policy: none or exponential.
	// Default: none
	Reconnect string `toml:"reconnect"`

	// ReconnectInitialMs is the first retry delay for exponential reconnect.
	// Default: 500
	ReconnectInitialMs int `toml:"reconnect_initial_ms"`

	// ReconnectMaxMs caps a single retry delay.
	// Default: 10000
	ReconnectMaxMs int `toml:"reconnect_max_ms"`

	// ReconnectMaxElapsedMs gives up after this long without a connection.
	// Default: 60000. Zero retries forever.
	ReconnectMaxElapsedMs int `toml:"reconnect_max_elapsed_ms"`

	// ViewHeight and ViewWidth size views opened automatically.
	// Default: 200 lines, 40 columns
	ViewHeight int `toml:"view_height"`
	ViewWidth  int `toml:"view_width"`

	// TraceDB is the SQLite protocol trace journal. Empty disables tracing.
	TraceDB string `toml:"trace_db"`

	// LogLevel controls logging verbosity: debug, info or error.
	// Default: info
	LogLevel string `toml:"log_level"`
}

// DefaultConfigPath returns the default config file location: ~/.bazed/frontend.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".bazed", "frontend.toml"), nil
}

// DefaultTracePath returns the default trace journal location: ~/.bazed/trace.db.
func DefaultTracePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".bazed", "trace.db"), nil
}

// WriteDefault creates a commented config file at path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# bazed frontend configuration

# Editing backend to connect to
addr = %q
path = %q

# Milliseconds to wait for a view to open; 0 waits indefinitely
request_timeout_ms = 0

# Reconnect policy: "none" or "exponential"
reconnect = %q

# Size of views opened for new documents
view_height = %d
view_width = %d
`, DefaultAddr, DefaultPath, ReconnectNone, DefaultViewHeight, DefaultViewWidth)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
// Defaults are not applied; call ApplyDefaults after merging flags.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Reconnect == "" {
		c.Reconnect = ReconnectNone
	}
	if c.ReconnectInitialMs == 0 {
		c.ReconnectInitialMs = DefaultReconnectInitialMs
	}
	if c.ReconnectMaxMs == 0 {
		c.ReconnectMaxMs = DefaultReconnectMaxMs
	}
	if c.ReconnectMaxElapsedMs == 0 {
		c.ReconnectMaxElapsedMs = DefaultReconnectMaxElapsedMs
	}
	if c.ViewHeight == 0 {
		c.ViewHeight = DefaultViewHeight
	}
	if c.ViewWidth == 0 {
		c.ViewWidth = DefaultViewWidth
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports the first out-of-range value as config.invalid.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return invalid("addr %q: %v", c.Addr, err)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return invalid("path %q must start with /", c.Path)
	}
	if c.RequestTimeoutMs < 0 {
		return invalid("request_timeout_ms must not be negative")
	}
	switch c.Reconnect {
	case ReconnectNone, ReconnectExponential:
	default:
		return invalid("reconnect %q: want %q or %q", c.Reconnect, ReconnectNone, ReconnectExponential)
	}
	if c.ReconnectInitialMs < 0 || c.ReconnectMaxMs < 0 || c.ReconnectMaxElapsedMs < 0 {
		return invalid("reconnect delays must not be negative")
	}
	if c.ViewHeight < 0 || c.ViewWidth < 0 {
		return invalid("view size %dx%d must not be negative", c.ViewHeight, c.ViewWidth)
	}
	switch c.LogLevel {
	case "debug", "info", "error":
	default:
		return invalid("log_level %q: want debug, info or error", c.LogLevel)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf(format, args...))
}

// URL returns the WebSocket URL of the backend.
func (c *Config) URL() string {
	u := url.URL{Scheme: "ws", Host: c.Addr, Path: c.Path}
	return u.String()
}

// RequestTimeout returns the view open timeout; zero means none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ReconnectDelays returns the initial, max and max elapsed reconnect delays.
func (c *Config) ReconnectDelays() (initial, max, maxElapsed time.Duration) {
	return time.Duration(c.ReconnectInitialMs) * time.Millisecond,
		time.Duration(c.ReconnectMaxMs) * time.Millisecond,
		time.Duration(c.ReconnectMaxElapsedMs) * time.Millisecond
}
