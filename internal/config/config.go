// Package config provides reading of knosync configuration.
// Loads knosync.yaml from the working directory (or an explicit path), then
// applies environment overrides, so containerized deployments can run
// without a config file at all.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidValue is returned when a config value is out of bounds.
var ErrInvalidValue = errors.New("invalid config value")

// DefaultPath is the config file looked for when no path is given.
const DefaultPath = "knosync.yaml"

// Relational selects and configures the relational backend.
type Relational struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver,omitempty"`

	// Path is the sqlite database file.
	Path string `yaml:"path,omitempty"`

	// DSN is the postgres connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// Graph configures the neo4j backend. An empty URI selects the in-process
// memory graph.
type Graph struct {
	URI      string `yaml:"uri,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// Embeddings configures the embedding provider.
type Embeddings struct {
	BaseURL     string  `yaml:"base_url,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	RatePerSec  float64 `yaml:"rate_per_sec,omitempty"`
	Burst       int     `yaml:"burst,omitempty"`
	MaxAttempts int     `yaml:"max_attempts,omitempty"`
}

// Sync holds coordinator and retry-scheduler options.
type Sync struct {
	StageTimeout  time.Duration `yaml:"stage_timeout,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
	MaxAttempts   int           `yaml:"max_attempts,omitempty"`
	BaseBackoff   time.Duration `yaml:"base_backoff,omitempty"`
	MaxBackoff    time.Duration `yaml:"max_backoff,omitempty"`
}

// Limits holds size limit configuration options.
type Limits struct {
	MaxTitle   *int   `yaml:"max_title,omitempty"`
	MaxContent *int64 `yaml:"max_content,omitempty"`
}

// Defaults applied when not configured.
const (
	DefaultDriver     = "sqlite"
	DefaultSQLitePath = "knosync.db"
	DefaultOllamaURL  = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
)

// Validation bounds for configuration values.
const (
	MinMaxTitle   = 1
	MaxMaxTitle   = 65536
	MinMaxContent = 1
	MaxMaxContent = 1024 * 1024 * 1024 // 1 GB
)

// Config contains configuration for knosync.
type Config struct {
	Relational Relational `yaml:"relational,omitempty"`
	Graph      Graph      `yaml:"graph,omitempty"`
	Embeddings Embeddings `yaml:"embeddings,omitempty"`
	Sync       Sync       `yaml:"sync,omitempty"`
	Limits     Limits     `yaml:"limits,omitempty"`
}

// Validate checks that all configured values are within acceptable bounds.
// Returns nil if all values are valid or not set (defaults will be used).
func (c *Config) Validate() error {
	switch c.Relational.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: relational.driver must be sqlite or postgres, got %q",
			ErrInvalidValue, c.Relational.Driver)
	}
	if c.Relational.Driver == "postgres" && c.Relational.DSN == "" {
		return fmt.Errorf("%w: relational.dsn is required for the postgres driver", ErrInvalidValue)
	}
	if c.Limits.MaxTitle != nil {
		v := *c.Limits.MaxTitle
		if v < MinMaxTitle || v > MaxMaxTitle {
			return fmt.Errorf("%w: max_title must be between %d and %d, got %d",
				ErrInvalidValue, MinMaxTitle, MaxMaxTitle, v)
		}
	}
	if c.Limits.MaxContent != nil {
		v := *c.Limits.MaxContent
		if v < MinMaxContent || v > MaxMaxContent {
			return fmt.Errorf("%w: max_content must be between %d and %d, got %d",
				ErrInvalidValue, MinMaxContent, MaxMaxContent, v)
		}
	}
	if c.Embeddings.RatePerSec < 0 {
		return fmt.Errorf("%w: embeddings.rate_per_sec must not be negative", ErrInvalidValue)
	}
	return nil
}

// Driver returns the relational driver name (defaults to sqlite).
func (c *Config) Driver() string {
	if c.Relational.Driver == "" {
		return DefaultDriver
	}
	return c.Relational.Driver
}

// SQLitePath returns the sqlite database file (defaults to knosync.db).
func (c *Config) SQLitePath() string {
	if c.Relational.Path == "" {
		return DefaultSQLitePath
	}
	return c.Relational.Path
}

// OllamaURL returns the embedding server base URL.
func (c *Config) OllamaURL() string {
	if c.Embeddings.BaseURL == "" {
		return DefaultOllamaURL
	}
	return c.Embeddings.BaseURL
}

// Model returns the embedding model name.
func (c *Config) Model() string {
	if c.Embeddings.Model == "" {
		return DefaultModel
	}
	return c.Embeddings.Model
}

// MaxTitle returns the configured title limit, 0 for the validate default.
func (c *Config) MaxTitle() int {
	if c.Limits.MaxTitle == nil {
		return 0
	}
	return *c.Limits.MaxTitle
}

// MaxContent returns the configured content limit, 0 for the validate default.
func (c *Config) MaxContent() int64 {
	if c.Limits.MaxContent == nil {
		return 0
	}
	return *c.Limits.MaxContent
}

// Load reads configuration from path (DefaultPath when empty), then applies
// environment overrides. A missing file is not an error: defaults plus
// environment are a complete configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("malformed config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the loaded file. Environment
// wins over file values.
func (c *Config) applyEnv() {
	setString(&c.Relational.Driver, "KNOSYNC_DRIVER")
	setString(&c.Relational.Path, "KNOSYNC_SQLITE_PATH")
	setString(&c.Relational.DSN, "POSTGRES_DSN")
	setString(&c.Graph.URI, "NEO4J_URI")
	setString(&c.Graph.User, "NEO4J_USER")
	setString(&c.Graph.Password, "NEO4J_PASSWORD")
	setString(&c.Graph.Database, "NEO4J_DATABASE")
	setString(&c.Embeddings.BaseURL, "OLLAMA_URL")
	setString(&c.Embeddings.Model, "OLLAMA_MODEL")

	if v, ok := os.LookupEnv("KNOSYNC_EMBED_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Embeddings.RatePerSec = f
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
