package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PIPEDAG_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg := LoadConfig(nil)

	if cfg.TableStoreDriver != "memory" {
		t.Fatalf("expected default driver memory, got %q", cfg.TableStoreDriver)
	}
	if cfg.LockManagerBackend != "noop" {
		t.Fatalf("expected default lock manager noop, got %q", cfg.LockManagerBackend)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr :8090, got %q", cfg.HTTPAddr)
	}
}

func TestLoadConfig_YAMLOverlayThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipedag.yaml")
	if err := os.WriteFile(path, []byte("table_store_driver: postgres\nhttp_addr: \":9000\"\n"), 0o644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("PIPEDAG_CONFIG_FILE", path)
	t.Setenv("PIPEDAG_HTTP_ADDR", ":9999")

	cfg := LoadConfig(nil)
	if cfg.TableStoreDriver != "postgres" {
		t.Fatalf("expected overlay driver postgres, got %q", cfg.TableStoreDriver)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("expected env override to win over overlay, got %q", cfg.HTTPAddr)
	}
}
