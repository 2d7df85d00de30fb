package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"ASSETBLOCK_ADDR", "ASSETBLOCK_PG_DSN", "ASSETBLOCK_TOKEN_TTL",
		"ASSETBLOCK_RATE_BURST", "ASSETBLOCK_RATE_PER_SEC",
		"ASSETBLOCK_MAX_UPLOAD_BYTES", "ASSETBLOCK_SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.MaxUploadBytes != 25<<20 {
		t.Fatalf("unexpected upload cap: %d", cfg.MaxUploadBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ASSETBLOCK_ADDR", ":9999")
	t.Setenv("ASSETBLOCK_PG_DSN", "postgres://localhost/assetblock")
	t.Setenv("ASSETBLOCK_TOKEN_TTL", "1h")
	t.Setenv("ASSETBLOCK_RATE_BURST", "100")
	t.Setenv("ASSETBLOCK_RATE_PER_SEC", "50")
	t.Setenv("ASSETBLOCK_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("ASSETBLOCK_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.PGDSN != "postgres://localhost/assetblock" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour || cfg.RateBurst != 100 || cfg.RatePerSec != 50 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 1024 || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ASSETBLOCK_TOKEN_TTL", "-1h")
	if _, err := Load(); err == nil {
		t.Fatal("negative ttl must be rejected")
	}
}
