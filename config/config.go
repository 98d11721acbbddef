// Package config loads server and CLI settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sublatesublate-design/legal-database/cache"
	"github.com/sublatesublate-design/legal-database/logger"
	"github.com/sublatesublate-design/legal-database/pool"
	"github.com/sublatesublate-design/legal-database/resolver"
	"github.com/sublatesublate-design/legal-database/search"
	"github.com/sublatesublate-design/legal-database/storage"
	"github.com/sublatesublate-design/legal-database/verify"

	"github.com/joho/godotenv"
)

// MemoryDatabase selects the in-process store
const MemoryDatabase = "memory"

// Config is the complete runtime configuration
type Config struct {
	Port           string
	RequestTimeout time.Duration

	DatabaseURL string
	DBMaxConns  int32

	Pool     pool.Config
	Cache    cache.Config
	Ranking  search.Weights
	Resolver resolver.Config
	Verify   verify.Thresholds
	Storage  storage.Config
	Log      logger.Config

	SeedFile string
}

// LoadEnv reads .env from the working directory, then from the project root
// when run from cmd/<name>/. It reports whether a file was found.
func LoadEnv() bool {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			return false
		}
	}
	return true
}

// Load builds a Config from the environment, falling back to defaults
func Load() (*Config, error) {
	var errs []error
	e := &env{errs: &errs}

	cfg := &Config{
		Port:           e.str("PORT", "8080"),
		RequestTimeout: e.duration("REQUEST_TIMEOUT", 10*time.Second),
		DatabaseURL:    e.str("DATABASE_URL", MemoryDatabase),
		DBMaxConns:     int32(e.integer("DB_MAX_CONNS", 10)),
		SeedFile:       e.str("SEED_FILE", ""),
	}

	poolDefaults := pool.DefaultConfig()
	cfg.Pool = pool.Config{
		Size:           e.integer("POOL_SIZE", poolDefaults.Size),
		AcquireTimeout: e.duration("POOL_ACQUIRE_TIMEOUT", poolDefaults.AcquireTimeout),
		RetryBackoff:   e.duration("POOL_RETRY_BACKOFF", poolDefaults.RetryBackoff),
	}

	cacheDefaults := cache.DefaultConfig()
	cfg.Cache = cache.Config{
		Capacity: e.integer("CACHE_CAPACITY", cacheDefaults.Capacity),
		TTL:      e.duration("CACHE_TTL", cacheDefaults.TTL),
	}

	w := search.DefaultWeights()
	cfg.Ranking = search.Weights{
		Text:           e.float("RANK_TEXT_WEIGHT", w.Text),
		Recency:        e.float("RANK_RECENCY_WEIGHT", w.Recency),
		HalfLifeYears:  e.float("RANK_RECENCY_HALF_LIFE_YEARS", w.HalfLifeYears),
		StatusActive:   e.float("RANK_STATUS_ACTIVE", w.StatusActive),
		StatusAmended:  e.float("RANK_STATUS_AMENDED", w.StatusAmended),
		StatusRepealed: e.float("RANK_STATUS_REPEALED", w.StatusRepealed),
	}

	cfg.Resolver = resolver.DefaultConfig()
	cfg.Resolver.MinConfidence = e.float("RESOLVER_MIN_CONFIDENCE", cfg.Resolver.MinConfidence)
	cfg.Resolver.SubstringPenalty = e.float("RESOLVER_SUBSTRING_PENALTY", cfg.Resolver.SubstringPenalty)
	cfg.Resolver.Learn = e.boolean("RESOLVER_LEARN", false)

	cfg.Verify = verify.DefaultThresholds()
	cfg.Verify.Exact = e.float("VERIFY_EXACT_THRESHOLD", cfg.Verify.Exact)
	cfg.Verify.Paraphrase = e.float("VERIFY_PARAPHRASE_THRESHOLD", cfg.Verify.Paraphrase)

	cfg.Storage = storage.Config{
		Type:         storage.Type(e.str("STORAGE_TYPE", string(storage.TypeLocal))),
		LocalPath:    e.str("STORAGE_LOCAL_PATH", "./storage/documents"),
		S3Bucket:     e.str("AWS_S3_BUCKET", ""),
		S3Region:     e.str("AWS_REGION", "us-east-1"),
		AWSAccessKey: e.str("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey: e.str("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Log = logger.Config{
		Level:  e.str("LOG_LEVEL", "info"),
		Pretty: e.boolean("LOG_PRETTY", false),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UseMemoryStore reports whether the in-process store is selected
func (c *Config) UseMemoryStore() bool {
	return c.DatabaseURL == "" || strings.EqualFold(c.DatabaseURL, MemoryDatabase)
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("POOL_SIZE must be positive, got %d", c.Pool.Size)
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("POOL_ACQUIRE_TIMEOUT must be positive, got %s", c.Pool.AcquireTimeout)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	for name, v := range map[string]float64{
		"RANK_TEXT_WEIGHT":     c.Ranking.Text,
		"RANK_RECENCY_WEIGHT":  c.Ranking.Recency,
		"RANK_STATUS_ACTIVE":   c.Ranking.StatusActive,
		"RANK_STATUS_AMENDED":  c.Ranking.StatusAmended,
		"RANK_STATUS_REPEALED": c.Ranking.StatusRepealed,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if !(c.Ranking.StatusActive >= c.Ranking.StatusAmended && c.Ranking.StatusAmended >= c.Ranking.StatusRepealed) {
		return errors.New("status weights must satisfy active >= amended >= repealed")
	}
	if err := c.Resolver.Validate(); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}
	if err := c.Verify.Validate(); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	switch c.Storage.Type {
	case storage.TypeLocal, storage.TypeNone:
	case storage.TypeS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	return nil
}

// env collects parse errors so every bad variable is reported at once
type env struct {
	errs *[]error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
