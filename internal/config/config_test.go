package config_test

import (
	"testing"
	"time"

	"github.com/YannKr/certstamp/internal/config"
)

func TestDefaults(t *testing.T) {
	t.Setenv("BASE_URL", "https://certs.example.org/")
	cfg := config.Load()
	if cfg.BaseURL != "https://certs.example.org" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.VerifyBaseURL != "https://certs.example.org/verify" {
		t.Errorf("VerifyBaseURL = %q", cfg.VerifyBaseURL)
	}
	if cfg.DateLayout != "02/01/2006" || cfg.RowTimeout != 30*time.Second || cfg.BatchConcurrency != 4 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("ROW_TIMEOUT", "5s")
	t.Setenv("BATCH_CONCURRENCY", "8")
	t.Setenv("DISK_BLOCK_PCT", "7.5")
	t.Setenv("FONT_DIRS", "/a: /b ::")
	t.Setenv("VERIFY_BASE_URL", "https://v.example.org/c/")

	cfg := config.Load()
	if cfg.RowTimeout != 5*time.Second || cfg.BatchConcurrency != 8 || cfg.DiskBlockPct != 7.5 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.FontDirs) != 2 || cfg.FontDirs[0] != "/a" || cfg.FontDirs[1] != "/b" {
		t.Errorf("FontDirs = %v", cfg.FontDirs)
	}
	if cfg.VerifyBaseURL != "https://v.example.org/c" {
		t.Errorf("VerifyBaseURL = %q", cfg.VerifyBaseURL)
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("BATCH_WORKERS", "many")
	t.Setenv("ROW_TIMEOUT", "soon")
	cfg := config.Load()
	if cfg.BatchWorkers != 2 || cfg.RowTimeout != 30*time.Second {
		t.Errorf("BatchWorkers=%d RowTimeout=%s", cfg.BatchWorkers, cfg.RowTimeout)
	}
}
