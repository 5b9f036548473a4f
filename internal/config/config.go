package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glabrego/moments-cli/internal/feed"
)

const defaultConfigPath = "moments.yaml"

// Config holds runtime settings for the CLI and the API server.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Database DatabaseConfig `yaml:"database"`
	Feed     FeedConfig     `yaml:"feed"`
	Mutation MutationConfig `yaml:"mutation"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// RemoteConfig points at the hosted store. An empty BaseURL runs the app
// against the local database only.
type RemoteConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Token     string   `yaml:"-"` // env-only
	Timeout   Duration `yaml:"timeout"`
	RateLimit float64  `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type FeedConfig struct {
	ItemsPerPage    int    `yaml:"items_per_page"`
	MaxVisiblePages int    `yaml:"max_visible_pages"`
	DefaultSort     string `yaml:"default_sort"`
}

type MutationConfig struct {
	PersistTimeout Duration `yaml:"persist_timeout"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Duration is a time.Duration read from YAML strings like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Defaults() Config {
	return Config{
		Remote: RemoteConfig{
			Timeout:   Duration(10 * time.Second),
			RateLimit: 5,
		},
		Database: DatabaseConfig{Path: "moments.db"},
		Feed: FeedConfig{
			ItemsPerPage:    10,
			MaxVisiblePages: 5,
			DefaultSort:     feed.DateDesc.String(),
		},
		Mutation: MutationConfig{PersistTimeout: Duration(10 * time.Second)},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", File: "moments.log"},
	}
}

// Load applies defaults, then the YAML file named by MOMENTS_CONFIG_PATH
// (moments.yaml when unset; a missing file is fine), then MOMENTS_*
// environment overrides, and validates the result.
func Load() (Config, error) {
	path := os.Getenv("MOMENTS_CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg := Defaults()
	if err := loadYAMLFile(&cfg, path, explicit); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv skips the config file.
func LoadFromEnv() (Config, error) {
	cfg := Defaults()
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAMLFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MOMENTS_REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("MOMENTS_REMOTE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}
	if v := os.Getenv("MOMENTS_REMOTE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MOMENTS_REMOTE_TIMEOUT: %w", err)
		}
		cfg.Remote.Timeout = Duration(d)
	}
	if v := os.Getenv("MOMENTS_REMOTE_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MOMENTS_REMOTE_RATE_LIMIT: %w", err)
		}
		cfg.Remote.RateLimit = f
	}
	if v := os.Getenv("MOMENTS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MOMENTS_ITEMS_PER_PAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOMENTS_ITEMS_PER_PAGE: %w", err)
		}
		cfg.Feed.ItemsPerPage = n
	}
	if v := os.Getenv("MOMENTS_MAX_VISIBLE_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOMENTS_MAX_VISIBLE_PAGES: %w", err)
		}
		cfg.Feed.MaxVisiblePages = n
	}
	if v := os.Getenv("MOMENTS_DEFAULT_SORT"); v != "" {
		cfg.Feed.DefaultSort = v
	}
	if v := os.Getenv("MOMENTS_PERSIST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MOMENTS_PERSIST_TIMEOUT: %w", err)
		}
		cfg.Mutation.PersistTimeout = Duration(d)
	}
	if v := os.Getenv("MOMENTS_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MOMENTS_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("MOMENTS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MOMENTS_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c Config) Validate() error {
	if c.Remote.BaseURL != "" {
		if !strings.HasPrefix(c.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Remote.BaseURL, "https://") {
			return fmt.Errorf("remote base URL must be http(s): %s", c.Remote.BaseURL)
		}
		if strings.HasSuffix(c.Remote.BaseURL, "/") {
			return fmt.Errorf("remote base URL must not end with '/': %s", c.Remote.BaseURL)
		}
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("remote timeout must be positive")
	}
	if c.Remote.RateLimit < 0 {
		return fmt.Errorf("remote rate limit must not be negative: %v", c.Remote.RateLimit)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Feed.ItemsPerPage <= 0 {
		return fmt.Errorf("items per page must be positive, got %d: %w", c.Feed.ItemsPerPage, feed.ErrInvalidConfiguration)
	}
	if c.Feed.MaxVisiblePages <= 0 || c.Feed.MaxVisiblePages%2 == 0 {
		return fmt.Errorf("max visible pages must be a positive odd number, got %d: %w", c.Feed.MaxVisiblePages, feed.ErrInvalidConfiguration)
	}
	if _, err := feed.ParseSortKey(c.Feed.DefaultSort); err != nil {
		return fmt.Errorf("default sort: %w", err)
	}
	if c.Mutation.PersistTimeout <= 0 {
		return errors.New("persist timeout must be positive")
	}
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	return nil
}

// SortKey returns the validated default sort.
func (c Config) SortKey() feed.SortKey {
	key, _ := feed.ParseSortKey(c.Feed.DefaultSort)
	return key
}
