package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/halcyonhealth/phiredact/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
lexicon:
  medical_path: testdata/medical.txt
  locations_path: testdata/locations.txt
providers:
  extraction:
    name: ollama
    model: qwen2.5:3b
  notegen:
    name: openai
    model: gpt-4o-mini
    api_key: sk-test
redaction:
  default_mode: reversible
  extraction_timeout_seconds: 20
mapstore:
  path: /var/lib/phiredact/mappings.db
audit:
  postgres_dsn: postgres://localhost/phiredact
`

func TestLoadFromReader_ValidConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.Extraction.Name != "ollama" {
		t.Errorf("Extraction.Name = %q", cfg.Providers.Extraction.Name)
	}
	if cfg.Redaction.DefaultMode != config.ModeReversible {
		t.Errorf("DefaultMode = %q", cfg.Redaction.DefaultMode)
	}
	if got := cfg.Redaction.ExtractionTimeout(); got != 20*time.Second {
		t.Errorf("ExtractionTimeout() = %v, want 20s", got)
	}
}

func TestExtractionTimeout_DefaultsTo30s(t *testing.T) {
	t.Parallel()
	var r config.RedactionConfig
	if got := r.ExtractionTimeout(); got != 30*time.Second {
		t.Errorf("ExtractionTimeout() = %v, want 30s", got)
	}
}

func TestLoadFromReader_UnknownFieldFails(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  unknown_knob: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidMode(t *testing.T) {
	t.Parallel()
	yaml := `
redaction:
  default_mode: shredder
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid mode, got nil")
	}
	if !strings.Contains(err.Error(), "default_mode") {
		t.Errorf("error should mention default_mode, got: %v", err)
	}
}

func TestValidate_RemoteExtractionRejected(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  extraction:
    name: openai
    model: gpt-4o
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for remote extraction backend, got nil")
	}
	if !strings.Contains(err.Error(), "local") {
		t.Errorf("error should mention the local requirement, got: %v", err)
	}
}

func TestValidate_NoteGenRequiresKeyAndModel(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	yaml := `
providers:
  notegen:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for notegen without key and model, got nil")
	}
	if !strings.Contains(err.Error(), "api_key") || !strings.Contains(err.Error(), "model") {
		t.Errorf("error should mention api_key and model, got: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
redaction:
  default_mode: shredder
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined errors, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") || !strings.Contains(err.Error(), "default_mode") {
		t.Errorf("joined error should report both failures, got: %v", err)
	}
}
