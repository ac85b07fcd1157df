// Package config loads runtime settings from the environment, after reading
// an optional .env file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lostboard/vismatch/resource"
)

// Prefix is prepended to every environment variable name.
const Prefix = "VISMATCH_"

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

type FetchConfig struct {
	Timeout       time.Duration
	MaxImageBytes int64
	// RatePerSecond limits image requests; 0 means unlimited.
	RatePerSecond float64
	// BytesPerSecond limits download throughput; 0 means unlimited.
	BytesPerSecond int64
}

type ModelConfig struct {
	// Weights locates the weight file: a local path, s3://bucket/key or
	// minio://bucket/key. Empty selects development weights.
	Weights string
	// CacheDir keeps a local copy of remote weight files.
	CacheDir       string
	DecodeMemory   int64
	MaxExtractions int64
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type MatchConfig struct {
	Threshold int
	Limit     int
}

type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres or dynamodb.
	Driver      string
	DSN         string
	DynamoTable string
}

type ServerConfig struct {
	Listen string
}

type Config struct {
	Log    LogConfig
	Fetch  FetchConfig
	Model  ModelConfig
	Minio  MinioConfig
	Match  MatchConfig
	Store  StoreConfig
	Server ServerConfig
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := FromLookup(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromLookup builds a Config using getenv for every variable. Unset or
// unparsable values fall back to their defaults.
func FromLookup(getenv func(string) string) *Config {
	e := env{getenv: getenv}
	return &Config{
		Log: LogConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "text"),
		},
		Fetch: FetchConfig{
			Timeout:        e.duration("FETCH_TIMEOUT", 15*time.Second),
			MaxImageBytes:  e.int64("MAX_IMAGE_BYTES", 20<<20),
			RatePerSecond:  e.float("FETCH_RATE", 0),
			BytesPerSecond: e.int64("FETCH_BYTES_PER_SECOND", 0),
		},
		Model: ModelConfig{
			Weights:        e.str("WEIGHTS", ""),
			CacheDir:       e.str("WEIGHTS_CACHE_DIR", ""),
			DecodeMemory:   e.int64("DECODE_MEMORY", 512<<20),
			MaxExtractions: e.int64("MAX_EXTRACTIONS", 0),
		},
		Minio: MinioConfig{
			Endpoint:  e.str("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: e.str("MINIO_ACCESS_KEY", ""),
			SecretKey: e.str("MINIO_SECRET_KEY", ""),
			UseSSL:    e.bool("MINIO_SSL", false),
		},
		Match: MatchConfig{
			Threshold: e.int("THRESHOLD", 40),
			Limit:     e.int("LIMIT", 3),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(e.str("STORE", "sqlite")),
			DSN:         e.str("DSN", "vismatch.db"),
			DynamoTable: e.str("DYNAMO_TABLE", "lostboard-items"),
		},
		Server: ServerConfig{
			Listen: e.str("LISTEN", ":8080"),
		},
	}
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: %sLOG_FORMAT must be text or json, got %q", Prefix, c.Log.Format)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "dynamodb":
	default:
		return fmt.Errorf("config: unknown %sSTORE %q", Prefix, c.Store.Driver)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config: %sFETCH_TIMEOUT must be positive", Prefix)
	}
	if c.Match.Limit < 0 {
		return fmt.Errorf("config: %sLIMIT must not be negative", Prefix)
	}
	if _, err := ParseWeights(c.Model.Weights); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Log.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: %sLOG_LEVEL: %w", Prefix, err)
	}
	return l, nil
}

// LogHandler returns the slog handler described by Log, writing to w.
func (c *Config) LogHandler(w io.Writer) slog.Handler {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Resources returns the resource limits derived from the config.
func (c *Config) Resources() resource.Config {
	return resource.Config{
		DecodeMemoryBytes:   c.Model.DecodeMemory,
		MaxExtractions:      c.Model.MaxExtractions,
		FetchesPerSecond:    c.Fetch.RatePerSecond,
		FetchBytesPerSecond: c.Fetch.BytesPerSecond,
	}
}

type env struct {
	getenv func(string) string
}

func (e env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(Prefix + key)); v != "" {
		return v
	}
	return def
}

func (e env) int(key string, def int) int {
	if v, err := strconv.Atoi(e.str(key, "")); err == nil {
		return v
	}
	return def
}

func (e env) int64(key string, def int64) int64 {
	if v, err := strconv.ParseInt(e.str(key, ""), 10, 64); err == nil {
		return v
	}
	return def
}

func (e env) float(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(e.str(key, ""), 64); err == nil {
		return v
	}
	return def
}

func (e env) bool(key string, def bool) bool {
	if v, err := strconv.ParseBool(e.str(key, "")); err == nil {
		return v
	}
	return def
}

func (e env) duration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(e.str(key, "")); err == nil {
		return v
	}
	return def
}
