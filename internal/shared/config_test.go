package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./songdesk.db" {
			t.Errorf("expected database path ./songdesk.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}
		if config.Auth.VerifyPath != "/auth/admin/me" {
			t.Errorf("expected verify path /auth/admin/me, got %s", config.Auth.VerifyPath)
		}
		if config.API.Timeout() != 10*time.Second {
			t.Errorf("expected 10s timeout, got %v", config.API.Timeout())
		}
		if config.Auth.RefreshInterval() != 30*time.Minute {
			t.Errorf("expected 30m refresh interval, got %v", config.Auth.RefreshInterval())
		}
		if config.Server.CookieMaxAge() != 7*24*time.Hour {
			t.Errorf("expected 7 day cookie, got %v", config.Server.CookieMaxAge())
		}
		if err := config.Validate(); err != nil {
			t.Errorf("expected default config to validate, got %v", err)
		}
	})

	t.Run("Duration Fallbacks", func(t *testing.T) {
		var api APIConfig
		var auth AuthConfig
		var srv ServerConfig

		if api.Timeout() != 10*time.Second {
			t.Errorf("expected fallback timeout 10s, got %v", api.Timeout())
		}
		if auth.RefreshInterval() != 30*time.Minute {
			t.Errorf("expected fallback interval 30m, got %v", auth.RefreshInterval())
		}
		if srv.CookieMaxAge() != 7*24*time.Hour {
			t.Errorf("expected fallback cookie age, got %v", srv.CookieMaxAge())
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := &Config{}
		err := config.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[api]
base_url = "https://admin.example.com/api"
timeout_seconds = 5

[auth]
token_url = "https://id.example.com/token"
client_id = "dashboard"
scopes = ["openid"]

[database]
path = "/custom/path.db"

[server]
port = 8080
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.API.BaseURL != "https://admin.example.com/api" {
			t.Errorf("unexpected base url %s", config.API.BaseURL)
		}
		if config.API.Timeout() != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", config.API.Timeout())
		}
		if config.Auth.ClientID != "dashboard" {
			t.Errorf("unexpected client id %s", config.Auth.ClientID)
		}
		if len(config.Auth.Scopes) != 1 || config.Auth.Scopes[0] != "openid" {
			t.Errorf("unexpected scopes %v", config.Auth.Scopes)
		}
		if config.Database.Path != "/custom/path.db" {
			t.Errorf("unexpected database path %s", config.Database.Path)
		}
		if config.Server.Port != 8080 {
			t.Errorf("expected port 8080, got %d", config.Server.Port)
		}
		if config.Auth.VerifyPath != "/auth/admin/me" {
			t.Errorf("expected verify path default to survive, got %s", config.Auth.VerifyPath)
		}
		if config.Server.Addr() != "127.0.0.1:8080" {
			t.Errorf("unexpected addr %s", config.Server.Addr())
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("LoadConfig Invalid TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		if err := os.WriteFile(path, []byte("[api\nbase_url = "), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected parse error")
		}
	})
}
