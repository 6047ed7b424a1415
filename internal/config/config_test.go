package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/config"
)

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("PNL_POSTGRES_DSN", "postgres://env-host/db")
	t.Setenv("PNL_REFRESH_PARALLELISM", "4")
	t.Setenv("PNL_CACHE_TTL", "2m")

	cfg := config.DefaultConfig()

	if cfg.PostgresDSN != "postgres://env-host/db" {
		t.Errorf("dsn: got %s", cfg.PostgresDSN)
	}
	if cfg.RefreshParallelism != 4 {
		t.Errorf("parallelism: got %d, want 4", cfg.RefreshParallelism)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("cache ttl: got %s, want 2m", cfg.CacheTTL)
	}
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("PNL_REFRESH_PARALLELISM", "not-a-number")
	t.Setenv("PNL_CACHE_TTL", "soon")

	cfg := config.DefaultConfig()
	if cfg.RefreshParallelism != 8 {
		t.Errorf("parallelism fallback: got %d, want 8", cfg.RefreshParallelism)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Errorf("ttl fallback: got %s, want 15m", cfg.CacheTTL)
	}
}

func TestYAMLOverridesEnv(t *testing.T) {
	t.Setenv("PNL_POSTGRES_DSN", "postgres://env-host/db")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "postgres_dsn: postgres://file-host/db\nrefresh_parallelism: 2\nreplay_max_duration: 5s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.PostgresDSN != "postgres://file-host/db" {
		t.Errorf("file should override env: got %s", cfg.PostgresDSN)
	}
	if cfg.RefreshParallelism != 2 {
		t.Errorf("parallelism: got %d, want 2", cfg.RefreshParallelism)
	}
	if cfg.ReplayMaxDuration != 5*time.Second {
		t.Errorf("replay budget: got %s, want 5s", cfg.ReplayMaxDuration)
	}
	// Untouched fields keep their env/default values.
	if cfg.NATSURL == "" {
		t.Error("nats url lost during file merge")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("cache_ttl: soonish\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("unparseable duration accepted")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := cfg
	bad.PostgresDSN = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty dsn accepted")
	}

	bad = cfg
	bad.RefreshParallelism = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero parallelism accepted")
	}
}
