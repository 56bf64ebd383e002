package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
api_base_url: http://backend:9000
user_id: u1
http_timeout_seconds: 10
poll_interval_seconds: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://backend:9000" {
		t.Fatalf("APIBaseURL got=%s", cfg.APIBaseURL)
	}
	if cfg.HTTPTimeoutDuration() != 10*time.Second {
		t.Fatalf("timeout got=%v", cfg.HTTPTimeoutDuration())
	}
	if cfg.PollIntervalDuration() != 30*time.Second {
		t.Fatalf("poll interval got=%v", cfg.PollIntervalDuration())
	}
	// Unset fields take defaults.
	if cfg.Listen != ":8080" || cfg.DebounceMs != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"api_base_url":"http://b:1","user_id":"u1"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://b:1" {
		t.Fatalf("APIBaseURL got=%s", cfg.APIBaseURL)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADEFRONT_API_URL", "http://env-wins:1234")
	t.Setenv("TRADEFRONT_USER_ID", "env-user")
	t.Setenv("TRADEFRONT_POLL_INTERVAL", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "http://env-wins:1234" || cfg.UserID != "env-user" || cfg.PollInterval != 5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("TRADEFRONT_USER_ID", "")
	if _, err := Load(""); err == nil {
		t.Fatal("missing user_id must fail validation")
	}

	t.Setenv("TRADEFRONT_USER_ID", "u1")
	t.Setenv("TRADEFRONT_API_URL", "ftp://nope")
	if _, err := Load(""); err == nil {
		t.Fatal("non-http api_base_url must fail validation")
	}
}

func TestUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.toml", "x = 1")
	if _, err := Load(path); err == nil {
		t.Fatal("unsupported config format must be rejected")
	}
}
