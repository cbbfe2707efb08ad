package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eventstore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, "backend: sqlite\ndsn: \"./data.db\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.SnapshotThreshold != 50 {
		t.Errorf("SnapshotThreshold = %d, want 50 (default)", cfg.SnapshotThreshold)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want \"info\" (default)", cfg.LogLevel)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeTemp(t, "backend: sqlite\ndsn: \"./data.db\"\nbakend: sqlite\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() succeeded, want error for unknown field")
	}
}

func TestLoad_UnknownBackendRejected(t *testing.T) {
	path := writeTemp(t, "backend: oracle\ndsn: \"x\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() succeeded, want error for unknown backend")
	}
}

func TestLoad_MongoRequiresDatabase(t *testing.T) {
	path := writeTemp(t, "backend: mongo\ndsn: \"mongodb://localhost:27017\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() succeeded, want error for missing database")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := validate(&cfg); err != nil {
		t.Fatalf("Default() produced an invalid config: %v", err)
	}
}
