package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glabrego/moments-cli/internal/feed"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MOMENTS_CONFIG_PATH", "MOMENTS_REMOTE_BASE_URL", "MOMENTS_REMOTE_TOKEN",
		"MOMENTS_REMOTE_TIMEOUT", "MOMENTS_REMOTE_RATE_LIMIT", "MOMENTS_DB_PATH",
		"MOMENTS_ITEMS_PER_PAGE", "MOMENTS_MAX_VISIBLE_PAGES", "MOMENTS_DEFAULT_SORT",
		"MOMENTS_PERSIST_TIMEOUT", "MOMENTS_SERVER_ADDR", "MOMENTS_SERVER_ALLOWED_ORIGINS",
		"MOMENTS_LOG_LEVEL", "MOMENTS_LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}
	if cfg.Feed.ItemsPerPage != 10 || cfg.Feed.MaxVisiblePages != 5 {
		t.Fatalf("unexpected feed defaults: %+v", cfg.Feed)
	}
	if cfg.Database.Path != "moments.db" || cfg.Remote.BaseURL != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SortKey() != feed.DateDesc {
		t.Fatalf("unexpected default sort: %s", cfg.SortKey())
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOMENTS_REMOTE_BASE_URL", "https://moments.example.com/api")
	t.Setenv("MOMENTS_REMOTE_TOKEN", "secret")
	t.Setenv("MOMENTS_ITEMS_PER_PAGE", "25")
	t.Setenv("MOMENTS_DEFAULT_SORT", "score_desc")
	t.Setenv("MOMENTS_PERSIST_TIMEOUT", "3s")
	t.Setenv("MOMENTS_SERVER_ALLOWED_ORIGINS", "http://localhost:3000, ,https://moments.example.com")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}
	if cfg.Remote.Token != "secret" || cfg.Feed.ItemsPerPage != 25 || cfg.SortKey() != feed.ScoreDesc {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Mutation.PersistTimeout.Std() != 3*time.Second {
		t.Fatalf("unexpected persist timeout: %v", cfg.Mutation.PersistTimeout.Std())
	}
	if got := strings.Join(cfg.Server.AllowedOrigins, "|"); got != "http://localhost:3000|https://moments.example.com" {
		t.Fatalf("unexpected allowed origins: %q", got)
	}
}

func TestLoadFromEnv_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOMENTS_ITEMS_PER_PAGE", "ten")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric items per page")
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "moments.yaml")
	content := `
remote:
  base_url: https://moments.example.com
  timeout: 2s
feed:
  items_per_page: 20
  max_visible_pages: 7
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MOMENTS_CONFIG_PATH", path)
	t.Setenv("MOMENTS_ITEMS_PER_PAGE", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Remote.BaseURL != "https://moments.example.com" || cfg.Remote.Timeout.Std() != 2*time.Second {
		t.Fatalf("yaml remote settings not applied: %+v", cfg.Remote)
	}
	if cfg.Feed.ItemsPerPage != 15 || cfg.Feed.MaxVisiblePages != 7 {
		t.Fatalf("unexpected feed settings: %+v", cfg.Feed)
	}
	if cfg.Log.Level != "debug" || cfg.Database.Path != "moments.db" {
		t.Fatalf("unexpected merged config: %+v", cfg)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOMENTS_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for explicitly named missing config file")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "moments.yaml")
	if err := os.WriteFile(path, []byte("mutation:\n  persist_timeout: soon\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MOMENTS_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		isCfg  bool
	}{
		{"trailing slash", func(c *Config) { c.Remote.BaseURL = "https://x.example.com/" }, false},
		{"bad scheme", func(c *Config) { c.Remote.BaseURL = "ftp://x.example.com" }, false},
		{"zero per page", func(c *Config) { c.Feed.ItemsPerPage = 0 }, true},
		{"even max pages", func(c *Config) { c.Feed.MaxVisiblePages = 4 }, true},
		{"unknown sort", func(c *Config) { c.Feed.DefaultSort = "random" }, false},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, false},
		{"zero persist timeout", func(c *Config) { c.Mutation.PersistTimeout = 0 }, false},
	}
	for _, tc := range cases {
		cfg := Defaults()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if tc.isCfg != errors.Is(err, feed.ErrInvalidConfiguration) {
			t.Fatalf("%s: unexpected error kind: %v", tc.name, err)
		}
	}
}
