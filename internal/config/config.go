/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus selection for cross-instance cache invalidation.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
	BusNATS   = "nats"
)

// Archive backend selection for strategy snapshots.
const (
	ArchiveFilesystem = "fs"
	ArchiveS3         = "s3"
)

// Config covers process level configuration. Values come from an optional
// TOML file, then environment variables override them.
type Config struct {
	Environment string          `toml:"environment"`
	HTTPBind    string          `toml:"http_bind"`
	HTTPPort    int             `toml:"http_port"`
	DBBackend   DatabaseBackend `toml:"db_backend"`
	DBDSN       string          `toml:"db_dsn"`
	MetricsBind string          `toml:"metrics_bind"`
	InstanceID  string          `toml:"instance_id"`

	// LogBufferSize is how many recent log lines /api/v1/logs can return.
	LogBufferSize int `toml:"log_buffer_size"`

	// WebSocketOrigins lists extra browser origin host patterns allowed to
	// open websocket streams. Same-origin and non-browser clients always are.
	WebSocketOrigins []string `toml:"websocket_origins"`

	// Generation limits
	MaxSequenceLength int      `toml:"max_sequence_length"`
	PreviewLimit      int      `toml:"preview_limit"`
	GenerateTimeout   Duration `toml:"generate_timeout"`

	// Cache and event bus
	CacheEnabled  bool     `toml:"cache_enabled"`
	CacheTTL      Duration `toml:"cache_ttl"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	EventBus      string   `toml:"event_bus"`
	NATSURL       string   `toml:"nats_url"`

	// Strategy archive
	ArchiveBackend    string `toml:"archive_backend"`
	ArchiveDir        string `toml:"archive_dir"`
	S3AccessKeyID     string `toml:"s3_access_key_id"`
	S3SecretAccessKey string `toml:"s3_secret_access_key"`
	S3Region          string `toml:"s3_region"`
	S3Bucket          string `toml:"s3_bucket"`
	S3Endpoint        string `toml:"s3_endpoint"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style"`

	// Tracing configuration
	TracingEnabled    bool    `toml:"tracing_enabled"`
	OTLPEndpoint      string  `toml:"otlp_endpoint"`
	TracingSampleRate float64 `toml:"tracing_sample_rate"`

	ConfigFile        string   `toml:"-"`
	LegacyEnvWarnings []string `toml:"-"`
}

// Duration reads "30s" style strings or bare seconds from the config file.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q", raw)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment:       "development",
		HTTPBind:          "0.0.0.0",
		HTTPPort:          8080,
		DBBackend:         DatabaseSQLite,
		DBDSN:             "slotsequencer.db",
		MetricsBind:       "127.0.0.1:9000",
		LogBufferSize:     5000,
		MaxSequenceLength: 100,
		PreviewLimit:      10,
		GenerateTimeout:   Duration(10 * time.Second),
		CacheTTL:          Duration(5 * time.Minute),
		RedisAddr:         "localhost:6379",
		EventBus:          BusMemory,
		NATSURL:           "nats://localhost:4222",
		ArchiveBackend:    ArchiveFilesystem,
		ArchiveDir:        "./archive",
		S3Region:          "us-east-1",
		OTLPEndpoint:      "localhost:4317",
		TracingSampleRate: 1.0,
	}
}

// Load reads the optional config file named by SLOTSEQ_CONFIG_FILE, applies
// environment overrides, and validates the result.
func Load() (*Config, error) {
	return LoadFile(getEnvAny([]string{"SLOTSEQ_CONFIG_FILE"}, ""))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.ConfigFile = path
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnvAny([]string{"SLOTSEQ_ENV", "GRIMNIR_ENV"}, c.Environment)
	c.HTTPBind = getEnvAny([]string{"SLOTSEQ_HTTP_BIND"}, c.HTTPBind)
	c.HTTPPort = getEnvIntAny([]string{"SLOTSEQ_HTTP_PORT"}, c.HTTPPort)
	c.DBBackend = DatabaseBackend(getEnvAny([]string{"SLOTSEQ_DB_BACKEND", "GRIMNIR_DB_BACKEND"}, string(c.DBBackend)))
	c.DBDSN = getEnvAny([]string{"SLOTSEQ_DB_DSN", "GRIMNIR_DB_DSN"}, c.DBDSN)
	c.MetricsBind = getEnvAny([]string{"SLOTSEQ_METRICS_BIND", "GRIMNIR_METRICS_BIND"}, c.MetricsBind)
	c.InstanceID = getEnvAny([]string{"SLOTSEQ_INSTANCE_ID", "GRIMNIR_INSTANCE_ID"}, c.InstanceID)
	c.LogBufferSize = getEnvIntAny([]string{"SLOTSEQ_LOG_BUFFER_SIZE"}, c.LogBufferSize)
	c.WebSocketOrigins = getEnvListAny([]string{"SLOTSEQ_WEBSOCKET_ORIGINS"}, c.WebSocketOrigins)

	c.MaxSequenceLength = getEnvIntAny([]string{"SLOTSEQ_MAX_SEQUENCE_LENGTH"}, c.MaxSequenceLength)
	c.PreviewLimit = getEnvIntAny([]string{"SLOTSEQ_PREVIEW_LIMIT"}, c.PreviewLimit)
	c.GenerateTimeout = Duration(getEnvDurationAny([]string{"SLOTSEQ_GENERATE_TIMEOUT"}, time.Duration(c.GenerateTimeout)))

	c.CacheEnabled = getEnvBoolAny([]string{"SLOTSEQ_CACHE_ENABLED"}, c.CacheEnabled)
	c.CacheTTL = Duration(getEnvDurationAny([]string{"SLOTSEQ_CACHE_TTL"}, time.Duration(c.CacheTTL)))
	c.RedisAddr = getEnvAny([]string{"SLOTSEQ_REDIS_ADDR", "GRIMNIR_REDIS_ADDR"}, c.RedisAddr)
	c.RedisPassword = getEnvAny([]string{"SLOTSEQ_REDIS_PASSWORD", "GRIMNIR_REDIS_PASSWORD"}, c.RedisPassword)
	c.RedisDB = getEnvIntAny([]string{"SLOTSEQ_REDIS_DB", "GRIMNIR_REDIS_DB"}, c.RedisDB)
	c.EventBus = getEnvAny([]string{"SLOTSEQ_EVENT_BUS"}, c.EventBus)
	c.NATSURL = getEnvAny([]string{"SLOTSEQ_NATS_URL", "NATS_URL"}, c.NATSURL)

	c.ArchiveBackend = getEnvAny([]string{"SLOTSEQ_ARCHIVE_BACKEND"}, c.ArchiveBackend)
	c.ArchiveDir = getEnvAny([]string{"SLOTSEQ_ARCHIVE_DIR"}, c.ArchiveDir)
	c.S3AccessKeyID = getEnvAny([]string{"SLOTSEQ_S3_ACCESS_KEY_ID", "GRIMNIR_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, c.S3AccessKeyID)
	c.S3SecretAccessKey = getEnvAny([]string{"SLOTSEQ_S3_SECRET_ACCESS_KEY", "GRIMNIR_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, c.S3SecretAccessKey)
	c.S3Region = getEnvAny([]string{"SLOTSEQ_S3_REGION", "GRIMNIR_S3_REGION", "AWS_REGION"}, c.S3Region)
	c.S3Bucket = getEnvAny([]string{"SLOTSEQ_S3_BUCKET", "GRIMNIR_S3_BUCKET", "S3_BUCKET"}, c.S3Bucket)
	c.S3Endpoint = getEnvAny([]string{"SLOTSEQ_S3_ENDPOINT", "GRIMNIR_S3_ENDPOINT", "S3_ENDPOINT"}, c.S3Endpoint)
	c.S3UsePathStyle = getEnvBoolAny([]string{"SLOTSEQ_S3_USE_PATH_STYLE", "GRIMNIR_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, c.S3UsePathStyle)

	c.TracingEnabled = getEnvBoolAny([]string{"SLOTSEQ_TRACING_ENABLED", "GRIMNIR_TRACING_ENABLED"}, c.TracingEnabled)
	c.OTLPEndpoint = getEnvAny([]string{"SLOTSEQ_OTLP_ENDPOINT", "GRIMNIR_OTLP_ENDPOINT"}, c.OTLPEndpoint)
	c.TracingSampleRate = getEnvFloatAny([]string{"SLOTSEQ_TRACING_SAMPLE_RATE", "GRIMNIR_TRACING_SAMPLE_RATE"}, c.TracingSampleRate)
}

func (c *Config) normalize() {
	c.DBBackend = DatabaseBackend(strings.ToLower(strings.TrimSpace(string(c.DBBackend))))
	c.EventBus = strings.ToLower(strings.TrimSpace(c.EventBus))
	c.ArchiveBackend = strings.ToLower(strings.TrimSpace(c.ArchiveBackend))
	if c.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.InstanceID = host
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return errors.New("SLOTSEQ_DB_DSN must be provided")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http port %d out of range", c.HTTPPort)
	}
	if c.MaxSequenceLength < 1 {
		return fmt.Errorf("max sequence length must be >= 1, got %d", c.MaxSequenceLength)
	}
	if c.PreviewLimit < 1 {
		return fmt.Errorf("preview limit must be >= 1, got %d", c.PreviewLimit)
	}
	switch c.EventBus {
	case BusMemory, BusRedis, BusNATS:
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}
	switch c.ArchiveBackend {
	case ArchiveFilesystem:
		if c.ArchiveDir == "" {
			return errors.New("SLOTSEQ_ARCHIVE_DIR must be set for the filesystem archive")
		}
	case ArchiveS3:
		if c.S3Bucket == "" {
			return errors.New("SLOTSEQ_S3_BUCKET must be set for the s3 archive")
		}
	default:
		return fmt.Errorf("unsupported archive backend %q", c.ArchiveBackend)
	}
	for _, pattern := range c.WebSocketOrigins {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid websocket origin pattern %q: %w", pattern, err)
		}
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("tracing sample rate %v not in [0, 1]", c.TracingSampleRate)
	}
	return nil
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// HTTPAddr is the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"GRIMNIR_DB_DSN":          "use SLOTSEQ_DB_DSN",
		"GRIMNIR_REDIS_ADDR":      "use SLOTSEQ_REDIS_ADDR",
		"GRIMNIR_TRACING_ENABLED": "use SLOTSEQ_TRACING_ENABLED",
		"GRIMNIR_OTLP_ENDPOINT":   "use SLOTSEQ_OTLP_ENDPOINT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvListAny splits the first set environment variable on commas.
func getEnvListAny(keys []string, def []string) []string {
	raw := getEnvAny(keys, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go durations ("30s") or bare seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
