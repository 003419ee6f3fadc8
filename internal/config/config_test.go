package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REMARKABLE_TOKEN", "eyJtok")
	t.Setenv("REMARKABLE_CACHE_TTL", "")
	t.Setenv("REMARKABLE_ROOT_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 60*time.Second {
		t.Errorf("default TTL = %v", cfg.CacheTTL)
	}
	if cfg.Workers != 5 || cfg.RetryAttempts != 3 {
		t.Errorf("unexpected defaults: workers=%d retries=%d", cfg.Workers, cfg.RetryAttempts)
	}
	if cfg.PageSize != 8000 || cfg.MaxOutputChars != 50000 {
		t.Errorf("unexpected size defaults: page=%d max=%d", cfg.PageSize, cfg.MaxOutputChars)
	}
	if cfg.RootPath != "/" {
		t.Errorf("root path = %q", cfg.RootPath)
	}
	if cfg.IndexPath == "" {
		t.Error("index path should have a default")
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("REMARKABLE_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REMARKABLE_TOKEN", "eyJtok")
	t.Setenv("REMARKABLE_CACHE_TTL", "sixty")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric TTL")
	}

	t.Setenv("REMARKABLE_CACHE_TTL", "")
	t.Setenv("REMARKABLE_PARALLEL_WORKERS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REMARKABLE_TOKEN", "eyJtok")
	t.Setenv("REMARKABLE_CACHE_TTL", "5")
	t.Setenv("REMARKABLE_PARALLEL_WORKERS", "2")
	t.Setenv("REMARKABLE_INDEX_PATH", "/tmp/custom.db")
	t.Setenv("REMARKABLE_REBUILD_INDEX", "true")
	t.Setenv("REMARKABLE_ROOT_PATH", "Work/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 5*time.Second {
		t.Errorf("TTL = %v", cfg.CacheTTL)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if cfg.IndexPath != "/tmp/custom.db" {
		t.Errorf("index path = %q", cfg.IndexPath)
	}
	if !cfg.RebuildIndex {
		t.Error("rebuild flag not picked up")
	}
	if cfg.RootPath != "/Work" {
		t.Errorf("root path = %q", cfg.RootPath)
	}
}

func TestNormalizeRoot(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"/Work", "/Work"},
		{"/Work/", "/Work"},
		{"Work", "/Work"},
		{"  /Work/Notes/ ", "/Work/Notes"},
	}
	for _, tt := range tests {
		if got := NormalizeRoot(tt.in); got != tt.want {
			t.Errorf("NormalizeRoot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
