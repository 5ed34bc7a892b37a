package opsconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ops-brain/opsd/internal/opsconfig"
)

func TestWriteDefaultThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yml")
	if err := opsconfig.WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	cfg, err := opsconfig.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "./data" {
		t.Errorf("Workspace = %q, want ./data", cfg.Workspace)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q, want Asia/Tokyo", cfg.Timezone)
	}
	if cfg.DefaultRedaction {
		t.Error("DefaultRedaction = true, want false")
	}
	if !cfg.FTSEnabled {
		t.Error("FTSEnabled = false, want true")
	}
	if cfg.MaxSnippetLen != 160 {
		t.Errorf("MaxSnippetLen = %d, want 160", cfg.MaxSnippetLen)
	}
}

func TestWriteDefaultRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yml")
	if err := opsconfig.WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := opsconfig.WriteDefault(path); err == nil {
		t.Error("expected error on second WriteDefault, got nil")
	}
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := opsconfig.Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadMissingRequiredFieldIsConfigError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yml")
	if err := os.WriteFile(path, []byte("timezone: \"UTC\"\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := opsconfig.Load(path); err == nil {
		t.Error("expected error for missing workspace field")
	}
}

func TestLoadCustomValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.yml")
	content := `workspace: "./custom"
timezone: "UTC"
privacy:
  default_redaction: true
index:
  fts: false
  max_snippet_len: 80
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := opsconfig.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "./custom" || cfg.Timezone != "UTC" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.DefaultRedaction {
		t.Error("DefaultRedaction = false, want true")
	}
	if cfg.FTSEnabled {
		t.Error("FTSEnabled = true, want false")
	}
	if cfg.MaxSnippetLen != 80 {
		t.Errorf("MaxSnippetLen = %d, want 80", cfg.MaxSnippetLen)
	}
}
