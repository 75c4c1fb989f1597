package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timing.SyncRecheck != 3*time.Second {
		t.Errorf("SyncRecheck = %v, want 3s", cfg.Timing.SyncRecheck)
	}
	if cfg.Timing.SyncPeriodic != 5*time.Second {
		t.Errorf("SyncPeriodic = %v, want 5s", cfg.Timing.SyncPeriodic)
	}
	if cfg.Timing.ChatGrace != 5*time.Second {
		t.Errorf("ChatGrace = %v, want 5s", cfg.Timing.ChatGrace)
	}
	if cfg.Timing.ConnectSettle != 1*time.Second {
		t.Errorf("ConnectSettle = %v, want 1s", cfg.Timing.ConnectSettle)
	}
	if cfg.Timing.ConnectTimeout != 30*time.Second {
		t.Errorf("ConnectTimeout = %v, want 30s", cfg.Timing.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != DefaultConfig().Server.BaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.Server.BaseURL)
	}
}

func TestLoad_ParsesValues(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://mail.example.com
  socket_url: wss://mail.example.com/ws/chat
timing:
  connect_timeout: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "https://mail.example.com" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Timing.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s", cfg.Timing.ConnectTimeout)
	}
	// Unset fields keep defaults.
	if cfg.Timing.SyncRecheck != 3*time.Second {
		t.Errorf("SyncRecheck = %v, want default 3s", cfg.Timing.SyncRecheck)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "server:\n  bogus_field: 1\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load should reject unknown fields")
	}
}

func TestLoadLayered_LaterOverridesEarlier(t *testing.T) {
	base := writeConfig(t, "server:\n  base_url: https://base.example.com\n")
	over := writeConfig(t, "server:\n  base_url: https://override.example.com\n")

	cfg, err := LoadLayered(base, over)
	if err != nil {
		t.Fatalf("LoadLayered: %v", err)
	}
	if cfg.Server.BaseURL != "https://override.example.com" {
		t.Errorf("BaseURL = %q, want override", cfg.Server.BaseURL)
	}
}

func TestLoadLayered_PartialLayerKeepsOtherFields(t *testing.T) {
	base := writeConfig(t, "timing:\n  sync_recheck: 100ms\n  chat_grace: 200ms\n")
	over := writeConfig(t, "timing:\n  chat_grace: 400ms\n")

	cfg, err := LoadLayered(base, over)
	if err != nil {
		t.Fatalf("LoadLayered: %v", err)
	}
	if cfg.Timing.SyncRecheck != 100*time.Millisecond {
		t.Errorf("SyncRecheck = %v, want 100ms from base layer", cfg.Timing.SyncRecheck)
	}
	if cfg.Timing.ChatGrace != 400*time.Millisecond {
		t.Errorf("ChatGrace = %v, want 400ms from override layer", cfg.Timing.ChatGrace)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty base url",
			mutate:  func(c *Config) { c.Server.BaseURL = "" },
			wantErr: "server.base_url",
		},
		{
			name:    "non-ws socket url",
			mutate:  func(c *Config) { c.Server.SocketURL = "https://x.example.com/ws" },
			wantErr: "server.socket_url",
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.Timing.ConnectTimeout = 0 },
			wantErr: "timing.connect_timeout",
		},
		{
			name:    "negative settle",
			mutate:  func(c *Config) { c.Timing.ConnectSettle = -time.Second },
			wantErr: "timing.connect_settle",
		},
		{
			name:    "zero login timeout",
			mutate:  func(c *Config) { c.Auth.LoginTimeout = 0 },
			wantErr: "auth.login_timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("INBOXCHAT_SERVER_URL", "https://env.example.com")
	t.Setenv("INBOXCHAT_CONNECT_TIMEOUT", "12s")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, want env override", cfg.Server.BaseURL)
	}
	if cfg.Timing.ConnectTimeout != 12*time.Second {
		t.Errorf("ConnectTimeout = %v, want 12s", cfg.Timing.ConnectTimeout)
	}
}

func TestApplyEnv_InvalidDuration(t *testing.T) {
	t.Setenv("INBOXCHAT_CONNECT_TIMEOUT", "soon")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("ApplyEnv should reject an unparseable duration")
	}
}
