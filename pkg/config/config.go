// Package config loads and validates the pipeline configuration from
// defaults, an optional YAML file, and environment overrides, in that
// order.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jaffleworks/shop-etl/pkg/source"
)

// endpointNamePattern keeps endpoint names usable as destination table
// names and log fields.
var endpointNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Endpoint configures one paginated data source.
type Endpoint struct {
	Name       string `yaml:"name"`
	Path       string `yaml:"path"`
	PrimaryKey string `yaml:"primary_key"`
	MaxPages   int    `yaml:"max_pages"`
}

// Config is the full pipeline configuration surface.
type Config struct {
	// BaseURL is the source API root.
	BaseURL string `yaml:"base_url"`

	// PageSize is the per_page value for every request.
	PageSize int `yaml:"page_size"`

	// RequestTimeoutSeconds bounds a single page request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// ChunkThreshold is the chunk emission size.
	ChunkThreshold int `yaml:"chunk_threshold"`

	// ConcurrencyLimit is the worker pool size per extraction run.
	ConcurrencyLimit int `yaml:"concurrency_limit"`

	// BatchSize is the number of pages scheduled and joined together.
	BatchSize int `yaml:"batch_size"`

	// EmptyBatchThreshold is the consecutive empty batches that end a run.
	EmptyBatchThreshold int `yaml:"empty_batch_threshold"`

	// StartPage is the first page of each run (default 1).
	StartPage int `yaml:"start_page"`

	// FullRefresh truncates destination tables before loading.
	FullRefresh bool `yaml:"full_refresh"`

	// Resume consults the checkpoint store for per-endpoint start pages.
	Resume bool `yaml:"resume"`

	Database struct {
		// Path of the DuckDB file; empty means in-memory.
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		// Addr enables the Redis checkpoint store when non-empty.
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Endpoints []Endpoint `yaml:"endpoints"`
}

// Default returns the stock Jaffle Shop configuration.
func Default() Config {
	cfg := Config{
		BaseURL:               "https://jaffle-shop.scalevector.ai/api/v1",
		PageSize:              100,
		RequestTimeoutSeconds: 10,
		ChunkThreshold:        1000,
		ConcurrencyLimit:      8,
		BatchSize:             20,
		EmptyBatchThreshold:   3,
		StartPage:             1,
		Endpoints: []Endpoint{
			{Name: "orders", Path: "/orders", PrimaryKey: "id", MaxPages: 100},
			{Name: "customers", Path: "/customers", PrimaryKey: "id", MaxPages: 50},
			{Name: "items", Path: "/items", PrimaryKey: "id", MaxPages: 100},
			{Name: "supplies", Path: "/supplies", PrimaryKey: "id", MaxPages: 20},
			{Name: "stores", Path: "/stores", PrimaryKey: "id", MaxPages: 5},
		},
	}
	cfg.Database.Path = "jaffle_shop.duckdb"
	cfg.Logging.Level = "info"
	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applyEnv overlays SHOPETL_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SHOPETL_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SHOPETL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SHOPETL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SHOPETL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SHOPETL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	applyEnvInt("SHOPETL_PAGE_SIZE", &cfg.PageSize)
	applyEnvInt("SHOPETL_REQUEST_TIMEOUT_SECONDS", &cfg.RequestTimeoutSeconds)
	applyEnvInt("SHOPETL_CHUNK_THRESHOLD", &cfg.ChunkThreshold)
	applyEnvInt("SHOPETL_CONCURRENCY_LIMIT", &cfg.ConcurrencyLimit)
	applyEnvInt("SHOPETL_BATCH_SIZE", &cfg.BatchSize)
	applyEnvInt("SHOPETL_EMPTY_BATCH_THRESHOLD", &cfg.EmptyBatchThreshold)
	applyEnvInt("SHOPETL_START_PAGE", &cfg.StartPage)
	applyEnvInt("SHOPETL_REDIS_DB", &cfg.Redis.DB)

	applyEnvBool("SHOPETL_FULL_REFRESH", &cfg.FullRefresh)
	applyEnvBool("SHOPETL_RESUME", &cfg.Resume)
	applyEnvBool("SHOPETL_LOG_PRETTY", &cfg.Logging.Pretty)
}

func applyEnvInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyEnvBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive (got %d)", c.PageSize)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive (got %d)", c.RequestTimeoutSeconds)
	}
	if c.ChunkThreshold <= 0 {
		return fmt.Errorf("chunk_threshold must be positive (got %d)", c.ChunkThreshold)
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("concurrency_limit must be positive (got %d)", c.ConcurrencyLimit)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive (got %d)", c.BatchSize)
	}
	if c.EmptyBatchThreshold <= 0 {
		return fmt.Errorf("empty_batch_threshold must be positive (got %d)", c.EmptyBatchThreshold)
	}
	if c.StartPage <= 0 {
		return fmt.Errorf("start_page must be positive (got %d)", c.StartPage)
	}
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if !endpointNamePattern.MatchString(ep.Name) {
			return fmt.Errorf("endpoint name %q must match %s", ep.Name, endpointNamePattern)
		}
		if seen[ep.Name] {
			return fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = true

		if ep.Path == "" {
			return fmt.Errorf("endpoint %s: path is required", ep.Name)
		}
		if ep.PrimaryKey == "" {
			return fmt.Errorf("endpoint %s: primary_key is required", ep.Name)
		}
		if ep.MaxPages <= 0 {
			return fmt.Errorf("endpoint %s: max_pages must be positive (got %d)", ep.Name, ep.MaxPages)
		}
	}

	return nil
}

// RequestTimeout returns the page request timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SourceEndpoints converts the configured endpoints to source descriptors.
func (c Config) SourceEndpoints() []source.Endpoint {
	eps := make([]source.Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		eps = append(eps, source.Endpoint{
			Name:       ep.Name,
			Path:       ep.Path,
			PrimaryKey: ep.PrimaryKey,
			MaxPages:   ep.MaxPages,
		})
	}
	return eps
}
