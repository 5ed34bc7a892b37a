package cliutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ops-brain/opsd/internal/opsconfig"
)

func TestOpenOffline_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "workspace"), 0750); err != nil {
		t.Fatalf("mkdir workspace: %v", err)
	}
	cfg := &opsconfig.Config{Workspace: "workspace", FTSEnabled: true}
	configPath := filepath.Join(dir, "ops.yml")

	off, err := OpenOffline(cfg, configPath, false)
	if err != nil {
		t.Fatalf("OpenOffline: %v", err)
	}
	defer func() { _ = off.Close() }()

	if off.lock != nil {
		t.Error("expected no lock to be held for a read-only open")
	}
	if off.Store == nil || off.Engine == nil || off.Pipeline == nil {
		t.Error("expected Store, Engine, and Pipeline to be populated")
	}
}

func TestOpenOffline_WriteAcquiresLock(t *testing.T) {
	t.Setenv("OPS_LOCK_TIMEOUT", "1")
	dir := t.TempDir()
	cfg := &opsconfig.Config{Workspace: "workspace", FTSEnabled: true}
	configPath := filepath.Join(dir, "ops.yml")

	off, err := OpenOffline(cfg, configPath, true)
	if err != nil {
		t.Fatalf("OpenOffline: %v", err)
	}
	defer func() { _ = off.Close() }()

	lockPath := filepath.Join(dir, "workspace", "canonical", ".ops.lock")
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected lock file at %s: %v", lockPath, err)
	}

	if _, err := OpenOffline(cfg, configPath, true); err == nil {
		t.Fatal("expected second write-mode open to fail while the first holds the lock")
	}
}

func TestOpenOffline_Close(t *testing.T) {
	dir := t.TempDir()
	cfg := &opsconfig.Config{Workspace: "workspace", FTSEnabled: false}
	configPath := filepath.Join(dir, "ops.yml")

	off, err := OpenOffline(cfg, configPath, true)
	if err != nil {
		t.Fatalf("OpenOffline: %v", err)
	}
	if err := off.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// After Close, a fresh write-mode open should succeed again.
	off2, err := OpenOffline(cfg, configPath, true)
	if err != nil {
		t.Fatalf("OpenOffline after Close: %v", err)
	}
	defer func() { _ = off2.Close() }()
}

func TestLockTimeout(t *testing.T) {
	t.Setenv("OPS_LOCK_TIMEOUT", "")
	if got := LockTimeout(); got != DefaultLockTimeout {
		t.Errorf("LockTimeout() with unset env = %v, want %v", got, DefaultLockTimeout)
	}

	t.Setenv("OPS_LOCK_TIMEOUT", "5")
	if got := LockTimeout(); got.Seconds() != 5 {
		t.Errorf("LockTimeout() with OPS_LOCK_TIMEOUT=5 = %v, want 5s", got)
	}

	t.Setenv("OPS_LOCK_TIMEOUT", "not-a-number")
	if got := LockTimeout(); got != DefaultLockTimeout {
		t.Errorf("LockTimeout() with invalid env = %v, want %v", got, DefaultLockTimeout)
	}
}
