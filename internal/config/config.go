// Package config loads the inboxprune policy: defaults, an optional YAML
// file with ${VAR} expansion, then INBOXPRUNE_* environment overrides.
// Command-line flags are applied on top by the cmd package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teemow/inboxprune/internal/batch"
	"github.com/teemow/inboxprune/internal/deletion"
	"github.com/teemow/inboxprune/internal/query"
	"github.com/teemow/inboxprune/internal/retry"
	"github.com/teemow/inboxprune/internal/tickets"
	"github.com/teemow/inboxprune/internal/unsubscribe"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config is the complete policy.
type Config struct {
	Batch       BatchConfig       `yaml:"batch"`
	Retry       RetryConfig       `yaml:"retry"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Deletion    DeletionConfig    `yaml:"deletion"`
	Tickets     TicketsConfig     `yaml:"tickets"`
	Audit       AuditConfig       `yaml:"audit"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
}

// BatchConfig controls delete batches.
type BatchConfig struct {
	Size        int           `yaml:"size"`
	PacingDelay time.Duration `yaml:"pacing_delay"`
}

// RetryConfig controls retries of transient gateway failures.
type RetryConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// FetchConfig controls metadata fetching during searches.
type FetchConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	PacingDelay time.Duration `yaml:"pacing_delay"`
	Concurrency int           `yaml:"concurrency"`
}

// GatewayConfig limits the Gmail API call rate. Zero disables limiting.
type GatewayConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DeletionConfig holds delete workflow defaults.
type DeletionConfig struct {
	DefaultMaxDeletions int `yaml:"default_max_deletions"`
}

// TicketsConfig selects and tunes the confirmation ticket store.
type TicketsConfig struct {
	Store         string        `yaml:"store"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig locates the Redis ticket store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AuditConfig selects the audit store.
type AuditConfig struct {
	Store       string `yaml:"store"`
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// UnsubscribeConfig holds the scanner's trusted domains.
type UnsubscribeConfig struct {
	TrustedDomains []string `yaml:"trusted_domains"`
}

// Default returns the built-in policy.
func Default() Config {
	return Config{
		Batch: BatchConfig{
			Size:        batch.DefaultBatchSize,
			PacingDelay: batch.DefaultPacingDelay,
		},
		Retry: RetryConfig{
			BaseDelay:   retry.DefaultBaseDelay,
			MaxDelay:    retry.DefaultMaxDelay,
			MaxAttempts: retry.DefaultMaxAttempts,
		},
		Fetch: FetchConfig{
			BatchSize:   query.DefaultFetchBatchSize,
			PacingDelay: query.DefaultPacingDelay,
			Concurrency: 10,
		},
		Gateway: GatewayConfig{
			RequestsPerSecond: 10,
			Burst:             10,
		},
		Deletion: DeletionConfig{
			DefaultMaxDeletions: deletion.DefaultMaxDeletions,
		},
		Tickets: TicketsConfig{
			Store:         StoreMemory,
			TTL:           tickets.DefaultTTL,
			SweepInterval: time.Minute,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: tickets.DefaultKeyPrefix,
			},
		},
		Audit: AuditConfig{
			Store: StoreFile,
			Path:  DefaultAuditPath(),
		},
		Unsubscribe: UnsubscribeConfig{
			TrustedDomains: append([]string(nil), unsubscribe.DefaultTrustedDomains...),
		},
	}
}

// DefaultAuditPath returns the audit log location under the user config dir.
func DefaultAuditPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "inboxprune", "audit.jsonl")
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// the environment. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML onto c. Unknown keys are rejected.
func (c *Config) decode(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from INBOXPRUNE_* variables.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	num("INBOXPRUNE_BATCH_SIZE", &c.Batch.Size)
	dur("INBOXPRUNE_PACING_DELAY", &c.Batch.PacingDelay)
	num("INBOXPRUNE_RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	num("INBOXPRUNE_FETCH_CONCURRENCY", &c.Fetch.Concurrency)
	num("INBOXPRUNE_MAX_DELETIONS", &c.Deletion.DefaultMaxDeletions)
	str("INBOXPRUNE_TICKET_STORE", &c.Tickets.Store)
	dur("INBOXPRUNE_TICKET_TTL", &c.Tickets.TTL)
	str("INBOXPRUNE_REDIS_ADDR", &c.Tickets.Redis.Addr)
	str("INBOXPRUNE_REDIS_PASSWORD", &c.Tickets.Redis.Password)
	num("INBOXPRUNE_REDIS_DB", &c.Tickets.Redis.DB)
	str("INBOXPRUNE_AUDIT_STORE", &c.Audit.Store)
	str("INBOXPRUNE_AUDIT_PATH", &c.Audit.Path)
	str("INBOXPRUNE_POSTGRES_DSN", &c.Audit.PostgresDSN)

	return errors.Join(errs...)
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Batch.Size < 1 || c.Batch.Size > 1000 {
		errs = append(errs, fmt.Errorf("batch.size must be between 1 and 1000, got %d", c.Batch.Size))
	}
	if c.Batch.PacingDelay < 0 {
		errs = append(errs, fmt.Errorf("batch.pacing_delay must not be negative, got %s", c.Batch.PacingDelay))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		errs = append(errs, errors.New("retry delays must be positive"))
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay (%s) is shorter than retry.base_delay (%s)", c.Retry.MaxDelay, c.Retry.BaseDelay))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must not be negative, got %d", c.Retry.MaxAttempts))
	}
	if c.Fetch.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("fetch.batch_size must be positive, got %d", c.Fetch.BatchSize))
	}
	if c.Fetch.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must not be negative, got %d", c.Fetch.Concurrency))
	}
	if c.Gateway.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("gateway.requests_per_second must not be negative, got %g", c.Gateway.RequestsPerSecond))
	}
	if n := c.Deletion.DefaultMaxDeletions; n < 1 || n > deletion.MaxDeletionsLimit {
		errs = append(errs, fmt.Errorf("deletion.default_max_deletions must be between 1 and %d, got %d", deletion.MaxDeletionsLimit, n))
	}
	if c.Tickets.TTL <= 0 {
		errs = append(errs, fmt.Errorf("tickets.ttl must be positive, got %s", c.Tickets.TTL))
	}
	switch c.Tickets.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Tickets.Redis.Addr == "" {
			errs = append(errs, errors.New("tickets.redis.addr is required for the redis ticket store"))
		}
	default:
		errs = append(errs, fmt.Errorf("tickets.store must be %q or %q, got %q", StoreMemory, StoreRedis, c.Tickets.Store))
	}
	switch c.Audit.Store {
	case StoreFile:
		if c.Audit.Path == "" {
			errs = append(errs, errors.New("audit.path is required for the file audit store"))
		}
	case StorePostgres:
		if c.Audit.PostgresDSN == "" {
			errs = append(errs, errors.New("audit.postgres_dsn is required for the postgres audit store"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.store must be %q or %q, got %q", StoreFile, StorePostgres, c.Audit.Store))
	}
	return errors.Join(errs...)
}
