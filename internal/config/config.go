// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all inboxchat configuration.
type Config struct {
	Server Server `yaml:"server"`
	Auth   Auth   `yaml:"auth"`
	Timing Timing `yaml:"timing"`
}

// Server holds backend endpoint settings.
type Server struct {
	BaseURL   string `yaml:"base_url"`   // HTTP API root, e.g. https://api.example.com
	SocketURL string `yaml:"socket_url"` // WebSocket chat endpoint, e.g. wss://api.example.com/ws/chat
}

// Auth holds login flow settings.
type Auth struct {
	AuthorizeURL string        `yaml:"authorize_url"` // External authorization page.
	CallbackAddr string        `yaml:"callback_addr"` // Loopback listener; empty picks a free port.
	LoginTimeout time.Duration `yaml:"login_timeout"` // How long to wait for the redirect callback.
}

// Timing holds the session state machine delays. Tests compress these.
type Timing struct {
	SyncRecheck    time.Duration `yaml:"sync_recheck"`    // Delay before re-checking a syncing mailbox.
	SyncPeriodic   time.Duration `yaml:"sync_periodic"`   // Coarse periodic re-check after a sync start.
	ChatGrace      time.Duration `yaml:"chat_grace"`      // Grace before chat input unlocks post-sync.
	ConnectSettle  time.Duration `yaml:"connect_settle"`  // Pause between login and channel connect.
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Transport establishment deadline.
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			BaseURL:   "http://localhost:8000",
			SocketURL: "ws://localhost:8000/ws/chat",
		},
		Auth: Auth{
			AuthorizeURL: "http://localhost:8000/auth/login",
			LoginTimeout: 5 * time.Minute,
		},
		Timing: Timing{
			SyncRecheck:    3 * time.Second,
			SyncPeriodic:   5 * time.Second,
			ChatGrace:      5 * time.Second,
			ConnectSettle:  1 * time.Second,
			ConnectTimeout: 30 * time.Second,
		},
	}
}

// Load reads a single YAML config file at path and returns a Config.
// For merging multiple config sources, use LoadLayered instead.
// If the file does not exist, defaults are returned without error.
// If the file contains invalid YAML or unknown fields, an error is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return &cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if err := checkURL("server.base_url", c.Server.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("server.socket_url", c.Server.SocketURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL("auth.authorize_url", c.Auth.AuthorizeURL, "http", "https"); err != nil {
		return err
	}
	if c.Auth.LoginTimeout <= 0 {
		return fmt.Errorf("config: auth.login_timeout must be positive, got %v", c.Auth.LoginTimeout)
	}
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"timing.sync_recheck", c.Timing.SyncRecheck},
		{"timing.sync_periodic", c.Timing.SyncPeriodic},
		{"timing.chat_grace", c.Timing.ChatGrace},
		{"timing.connect_timeout", c.Timing.ConnectTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("config: %s must be positive, got %v", d.name, d.val)
		}
	}
	if c.Timing.ConnectSettle < 0 {
		return fmt.Errorf("config: timing.connect_settle must be non-negative, got %v", c.Timing.ConnectSettle)
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: INBOXCHAT_SERVER_URL, INBOXCHAT_SOCKET_URL,
// INBOXCHAT_AUTH_URL, INBOXCHAT_CONNECT_TIMEOUT.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("INBOXCHAT_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("INBOXCHAT_SOCKET_URL"); v != "" {
		c.Server.SocketURL = v
	}
	if v := os.Getenv("INBOXCHAT_AUTH_URL"); v != "" {
		c.Auth.AuthorizeURL = v
	}
	if v := os.Getenv("INBOXCHAT_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid INBOXCHAT_CONNECT_TIMEOUT %q: %w", v, err)
		}
		c.Timing.ConnectTimeout = d
	}
	return nil
}

// checkURL validates that raw parses as a URL with one of the given schemes.
func checkURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("config: %s cannot be empty", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("config: %s must use scheme %v, got %q", name, schemes, u.Scheme)
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Server *rawServer `yaml:"server"`
	Auth   *rawAuth   `yaml:"auth"`
	Timing *rawTiming `yaml:"timing"`
}

type rawServer struct {
	BaseURL   *string `yaml:"base_url"`
	SocketURL *string `yaml:"socket_url"`
}

type rawAuth struct {
	AuthorizeURL *string        `yaml:"authorize_url"`
	CallbackAddr *string        `yaml:"callback_addr"`
	LoginTimeout *time.Duration `yaml:"login_timeout"`
}

type rawTiming struct {
	SyncRecheck    *time.Duration `yaml:"sync_recheck"`
	SyncPeriodic   *time.Duration `yaml:"sync_periodic"`
	ChatGrace      *time.Duration `yaml:"chat_grace"`
	ConnectSettle  *time.Duration `yaml:"connect_settle"`
	ConnectTimeout *time.Duration `yaml:"connect_timeout"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if layer.Server != nil {
		if layer.Server.BaseURL != nil {
			c.Server.BaseURL = *layer.Server.BaseURL
		}
		if layer.Server.SocketURL != nil {
			c.Server.SocketURL = *layer.Server.SocketURL
		}
	}
	if layer.Auth != nil {
		if layer.Auth.AuthorizeURL != nil {
			c.Auth.AuthorizeURL = *layer.Auth.AuthorizeURL
		}
		if layer.Auth.CallbackAddr != nil {
			c.Auth.CallbackAddr = *layer.Auth.CallbackAddr
		}
		if layer.Auth.LoginTimeout != nil {
			c.Auth.LoginTimeout = *layer.Auth.LoginTimeout
		}
	}
	if layer.Timing != nil {
		if layer.Timing.SyncRecheck != nil {
			c.Timing.SyncRecheck = *layer.Timing.SyncRecheck
		}
		if layer.Timing.SyncPeriodic != nil {
			c.Timing.SyncPeriodic = *layer.Timing.SyncPeriodic
		}
		if layer.Timing.ChatGrace != nil {
			c.Timing.ChatGrace = *layer.Timing.ChatGrace
		}
		if layer.Timing.ConnectSettle != nil {
			c.Timing.ConnectSettle = *layer.Timing.ConnectSettle
		}
		if layer.Timing.ConnectTimeout != nil {
			c.Timing.ConnectTimeout = *layer.Timing.ConnectTimeout
		}
	}
}
