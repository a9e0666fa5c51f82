package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StorageDriver != DriverMemory {
		t.Errorf("expected memory driver, got %q", cfg.StorageDriver)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Addr())
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected 10s, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("API_PORT", "9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StorageDriver != DriverRedis || cfg.RedisAddr != "cache:6380" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.APIPort != "9090" || cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := "storage_driver: postgres\ndb_url: postgresql://u:p@db:5432/cascade\nlog_format: text\n"
	if err := os.WriteFile(filepath.Join(dir, "cascade.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Окружение важнее файла
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.StorageDriver != DriverPostgres || cfg.DBURL != "postgresql://u:p@db:5432/cascade" {
		t.Errorf("file not applied: %+v", cfg)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("expected env to override file, got %q", cfg.LogFormat)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load("")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
