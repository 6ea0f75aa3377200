// Package config provides configuration loading for ctxtrack.
//
// Precedence (highest to lowest): environment variables with the CTXTRACK_
// prefix, then a YAML config file, then the hardcoded defaults. Environment
// variables map underscores to nesting, e.g. CTXTRACK_STORAGE_BACKEND maps
// to storage.backend and CTXTRACK_CACHE_TTL to cache.ttl.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Backend names accepted by storage.backend.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config is the full runtime configuration.
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Cache     CacheConfig     `koanf:"cache"`
	HTTP      HTTPConfig      `koanf:"http"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Search    SearchConfig    `koanf:"search"`
	LogLevel  string          `koanf:"log_level"`
}

// StorageConfig selects and tunes the persistent backend.
type StorageConfig struct {
	Backend         string        `koanf:"backend"`
	SQLitePath      string        `koanf:"sqlite_path"`
	FileRoot        string        `koanf:"file_root"`
	MaxConns        int           `koanf:"max_conns"`
	CheckoutTimeout time.Duration `koanf:"checkout_timeout"`
}

// CacheConfig tunes the in-process TTL cache.
type CacheConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	MaxEntries    int           `koanf:"max_entries"`
}

// HTTPConfig configures the HTTP API listener.
type HTTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// BroadcastConfig tunes the live-update fan-out.
type BroadcastConfig struct {
	QueueSize int `koanf:"queue_size"`
}

// SearchConfig tunes the search engine.
type SearchConfig struct {
	DefaultLimit int `koanf:"default_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:         BackendSQLite,
			SQLitePath:      "~/.ctxtrack/ctxtrack.db",
			FileRoot:        "~/.ctxtrack/contexts",
			MaxConns:        10,
			CheckoutTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           30 * time.Second,
			SweepInterval: 60 * time.Second,
			MaxEntries:    1024,
		},
		HTTP: HTTPConfig{
			Host: "localhost",
			Port: 8700,
		},
		Broadcast: BroadcastConfig{
			QueueSize: 32,
		},
		Search: SearchConfig{
			DefaultLimit: 10,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the YAML file at path (if it exists) and
// applies CTXTRACK_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// CTXTRACK_STORAGE_BACKEND -> storage.backend
	err := k.Load(env.Provider("CTXTRACK_", ".", envTransform), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps CTXTRACK_SECTION_FIELD_NAME to section.field_name.
// Keys outside a known section (e.g. CTXTRACK_LOG_LEVEL) pass through
// underscored so they match their top-level koanf tags.
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "CTXTRACK_"))
	for _, section := range []string{"storage_", "cache_", "http_", "broadcast_", "search_"} {
		if strings.HasPrefix(key, section) {
			return strings.TrimSuffix(section, "_") + "." + strings.TrimPrefix(key, section)
		}
	}
	return key
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Storage.Backend != BackendSQLite && c.Storage.Backend != BackendFile {
		return fmt.Errorf("unsupported storage backend %q (want %q or %q)",
			c.Storage.Backend, BackendSQLite, BackendFile)
	}
	if c.Storage.MaxConns < 1 {
		return fmt.Errorf("storage.max_conns must be >= 1, got %d", c.Storage.MaxConns)
	}
	if c.Storage.CheckoutTimeout <= 0 {
		return fmt.Errorf("storage.checkout_timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.max_entries must be >= 1")
	}
	if c.Broadcast.QueueSize < 1 {
		return fmt.Errorf("broadcast.queue_size must be >= 1")
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be >= 1")
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return home + strings.TrimPrefix(path, "~"), nil
}
