// Package config collects the REMARKABLE_* environment surface into one
// validated struct built once at startup. Components receive only the fields
// they need; nothing reads the environment after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults for every optional knob.
const (
	DefaultCacheTTL       = 60 * time.Second
	DefaultMaxOutputChars = 50000
	DefaultPageSize       = 8000
	DefaultWorkers        = 5
	DefaultRetryAttempts  = 3
)

// Config is the full configuration surface. Only Token is required.
type Config struct {
	// Token is the bearer credential for the cloud API. Either a raw
	// device token or a JSON blob with devicetoken/usertoken fields.
	Token string

	// CacheTTL bounds how long metadata listings are trusted before the
	// fingerprint is re-checked.
	CacheTTL time.Duration

	// IndexPath is the SQLite file holding the artifact cache and the
	// full-text index.
	IndexPath string

	// RebuildIndex forces a full index rebuild on startup.
	RebuildIndex bool

	// MaxOutputChars caps any single returned artifact. Oversized
	// content is paginated, never silently dropped.
	MaxOutputChars int

	// PageSize is the character chunk size for paginated document text.
	PageSize int

	// Workers bounds the parallel metadata fetch during tree sync.
	Workers int

	// RetryAttempts caps retries of transient network failures.
	RetryAttempts int

	// RootPath restricts the visible subtree, e.g. "/Work". Empty or
	// "/" means the whole library.
	RootPath string
}

// Load reads and validates the environment. A malformed value is an error
// rather than a silent fallback so a typo does not change behavior unnoticed.
func Load() (Config, error) {
	cfg := Config{
		Token:          strings.TrimSpace(os.Getenv("REMARKABLE_TOKEN")),
		CacheTTL:       DefaultCacheTTL,
		IndexPath:      defaultIndexPath(),
		RebuildIndex:   boolEnv("REMARKABLE_REBUILD_INDEX"),
		MaxOutputChars: DefaultMaxOutputChars,
		PageSize:       DefaultPageSize,
		Workers:        DefaultWorkers,
		RetryAttempts:  DefaultRetryAttempts,
		RootPath:       NormalizeRoot(os.Getenv("REMARKABLE_ROOT_PATH")),
	}

	if cfg.Token == "" {
		return cfg, fmt.Errorf("REMARKABLE_TOKEN is required")
	}

	if v := os.Getenv("REMARKABLE_CACHE_TTL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return cfg, fmt.Errorf("invalid REMARKABLE_CACHE_TTL %q", v)
		}
		cfg.CacheTTL = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("REMARKABLE_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("REMARKABLE_MAX_OUTPUT_CHARS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid REMARKABLE_MAX_OUTPUT_CHARS %q", v)
		}
		cfg.MaxOutputChars = n
	}
	if v := os.Getenv("REMARKABLE_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid REMARKABLE_PAGE_SIZE %q", v)
		}
		cfg.PageSize = n
	}
	if v := os.Getenv("REMARKABLE_PARALLEL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid REMARKABLE_PARALLEL_WORKERS %q", v)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("REMARKABLE_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid REMARKABLE_RETRY_ATTEMPTS %q", v)
		}
		cfg.RetryAttempts = n
	}

	return cfg, nil
}

// NormalizeRoot canonicalizes a root scope path: empty and "/" mean full
// access, anything else gets a leading slash and no trailing slash.
func NormalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" || root == "/" {
		return "/"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return strings.TrimRight(root, "/")
}

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func defaultIndexPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return filepath.Join(".", "rm-mcp", "index.db")
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "rm-mcp", "index.db")
}
