package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
databaseURL: postgres://localhost:5432/insidelm
embeddingDim: 768
redisAddr: localhost:6379
cacheTtlSeconds: 120
amqpURL: amqp://localhost:5672
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("logLevel = %q", cfg.LogLevel)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/insidelm" {
		t.Fatalf("databaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.EmbeddingDim != 768 {
		t.Fatalf("embeddingDim = %d", cfg.EmbeddingDim)
	}
	if cfg.CacheTTLSeconds != 120 {
		t.Fatalf("cacheTtlSeconds = %d", cfg.CacheTTLSeconds)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
databaseURL: postgres://file:5432/insidelm
embeddingDim: 384
`)
	t.Setenv("DATABASE_URL", "postgres://env:5432/insidelm")
	t.Setenv("INSIDELM_EMBEDDING_DIM", "1024")
	t.Setenv("INSIDELM_LOG_LEVEL", "warn")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env:5432/insidelm" {
		t.Fatalf("env did not override databaseURL: %q", cfg.DatabaseURL)
	}
	if cfg.EmbeddingDim != 1024 {
		t.Fatalf("env did not override embeddingDim: %d", cfg.EmbeddingDim)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("env did not override logLevel: %q", cfg.LogLevel)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("env did not override redisAddr: %q", cfg.RedisAddr)
	}
}

func TestInvalidEmbeddingDimEnvIgnored(t *testing.T) {
	path := writeConfig(t, `
databaseURL: postgres://localhost:5432/insidelm
embeddingDim: 384
`)
	t.Setenv("INSIDELM_EMBEDDING_DIM", "not-a-number")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EmbeddingDim != 384 {
		t.Fatalf("bogus env value applied: %d", cfg.EmbeddingDim)
	}
}

func TestEmbeddingDimBounds(t *testing.T) {
	// Zero is allowed: the store falls back to its default dimension.
	path := writeConfig(t, `
databaseURL: postgres://localhost:5432/insidelm
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load with omitted embeddingDim: %v", err)
	}
	if cfg.EmbeddingDim != 0 {
		t.Fatalf("embeddingDim = %d, want 0", cfg.EmbeddingDim)
	}

	path = writeConfig(t, `
databaseURL: postgres://localhost:5432/insidelm
embeddingDim: -1
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for negative embeddingDim")
	}
}

func TestMissingDatabaseURLFails(t *testing.T) {
	path := writeConfig(t, `logLevel: info`)
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error without databaseURL")
	}
}

func TestMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
