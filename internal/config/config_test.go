package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Session.DefaultLanguage != "ca-ES" {
		t.Fatalf("expected ca-ES default language, got %s", cfg.Session.DefaultLanguage)
	}
	onset, limit := cfg.Capture.Timeouts()
	if onset != time.Second || limit != 5*time.Second {
		t.Fatalf("expected short profile timeouts, got %s/%s", onset, limit)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DICTAT_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("DICTAT_BUS_USERNAME", "alice")
	t.Setenv("DICTAT_BUS_PASSWORD", "secret")
	t.Setenv("DICTAT_BUS_TLS_INSECURE", "true")
	t.Setenv("DICTAT_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("DICTAT_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("DICTAT_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("DICTAT_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("DICTAT_CAPTURE_PROFILE", "long")
	t.Setenv("DICTAT_CAPTURE_ENERGY_MULTIPLIER", "2.5")
	t.Setenv("DICTAT_RECOGNITION_MODE", "mock")
	t.Setenv("DICTAT_RECOGNITION_MAX_INFLIGHT", "2")
	t.Setenv("DICTAT_SESSION_DEFAULT_LANGUAGE", "en-US")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	onset, limit := cfg.Capture.Timeouts()
	if onset != 3*time.Second || limit != 20*time.Second {
		t.Fatalf("expected long profile timeouts, got %s/%s", onset, limit)
	}
	if cfg.Capture.EnergyMultiplier != 2.5 {
		t.Fatalf("expected energy multiplier override, got %v", cfg.Capture.EnergyMultiplier)
	}
	if cfg.Recognition.Mode != "mock" || cfg.Recognition.MaxInflight != 2 {
		t.Fatalf("expected recognition overrides, got %+v", cfg.Recognition)
	}
	if cfg.Session.DefaultLanguage != "en-US" {
		t.Fatalf("expected language override")
	}
}

func TestExplicitTimeoutsOverrideProfile(t *testing.T) {
	c := Default().Capture
	c.OnsetTimeoutMS = 250
	onset, limit := c.Timeouts()
	if onset != 250*time.Millisecond {
		t.Fatalf("expected explicit onset timeout, got %s", onset)
	}
	if limit != 5*time.Second {
		t.Fatalf("expected profile phrase limit, got %s", limit)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictat.yaml")
	data := []byte(`
session:
  default_language: es-ES
capture:
  source: file
  file: ./speech.wav
recognition:
  mode: exec
  command: "python3 recognize.py"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Source != "file" || cfg.Capture.File != "./speech.wav" {
		t.Fatalf("expected file capture, got %+v", cfg.Capture)
	}
	if cfg.Recognition.Command != "python3 recognize.py" {
		t.Fatalf("expected exec command, got %q", cfg.Recognition.Command)
	}
	if cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected defaults preserved, got %d", cfg.Capture.SampleRate)
	}
}

func TestValidationFailures(t *testing.T) {
	cases := map[string]string{
		"DICTAT_SESSION_DEFAULT_LANGUAGE": "fr-FR",
		"DICTAT_RECOGNITION_MODE":         "offline",
		"DICTAT_CAPTURE_PROFILE":          "medium",
		"DICTAT_RECOGNITION_MAX_INFLIGHT": "0",
		"DICTAT_CAPTURE_SOURCE":           "file",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
