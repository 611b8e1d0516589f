/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for strategies and
// catalog snapshots.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotsequencer/internal/sequencer"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// Default TTL values for different cache types
const (
	DefaultStrategyTTL = 5 * time.Minute
	DefaultCatalogTTL  = 1 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyStrategy   = "slotseq:cache:strategy:" // + channel_id:tier
	KeyCatalog    = "slotseq:cache:catalog"
	KeyGeneration = "slotseq:cache:gen:"
)

// ErrStale is returned by a fill whose generation counters moved while the
// caller was reading from the database.
var ErrStale = errors.New("cache generation changed during fill")

// Version holds the generation counters a reader saw before it went to the
// database. Invalidation bumps the counters, so a fill carrying an older
// Version is dropped instead of overwriting newer data.
type Version struct {
	keys   []string
	values []int64
}

func strategyGenerations(channelID, tier string) []string {
	return []string{
		KeyGeneration + "channel:" + channelID,
		KeyGeneration + "strategy:" + channelID + ":" + tier,
	}
}

func catalogGenerations() []string {
	return []string{KeyGeneration + "catalog"}
}

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StrategyTTL time.Duration
	CatalogTTL  time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		StrategyTTL:    DefaultStrategyTTL,
		CatalogTTL:     DefaultCatalogTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil or
// disabled Cache reports misses and ignores writes.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return NewWithClient(client, cfg, logger)
}

// NewWithClient wraps an existing client and pings it once.
func NewWithClient(client *redis.Client, cfg Config, logger zerolog.Logger) *Cache {
	c := &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		c.disabled = true
		return c
	}
	c.logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	return c
}

// Disabled returns a cache that never stores anything.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{logger: logger.With().Str("component", "cache").Logger(), disabled: true}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")
	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.handleError(err, "get")
		return false
	}

	if err := gojson.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false
	}
	return true
}

func (c *Cache) version(ctx context.Context, keys []string) (Version, bool) {
	if !c.IsAvailable() {
		return Version{}, false
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.handleError(err, "mget")
		return Version{}, false
	}
	return Version{keys: keys, values: parseGenerations(vals)}, true
}

func parseGenerations(vals []any) []int64 {
	out := make([]int64, len(vals))
	for i, raw := range vals {
		if str, ok := raw.(string); ok {
			out[i], _ = strconv.ParseInt(str, 10, 64)
		}
	}
	return out
}

// setIfCurrent writes value only while the generation counters in v are
// unchanged. WATCH makes a concurrent bump abort the write.
func (c *Cache) setIfCurrent(ctx context.Context, v Version, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() || len(v.keys) == 0 {
		return nil
	}

	data, err := gojson.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, v.keys...).Result()
		if err != nil {
			return err
		}
		for i, current := range parseGenerations(vals) {
			if current != v.values[i] {
				return ErrStale
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, v.keys...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug().Str("key", key).Msg("dropped stale cache fill")
		return ErrStale
	}
	c.handleError(err, "set")
	return err
}

// bump advances generation counters and drops keys in one transaction.
func (c *Cache) bump(ctx context.Context, generations []string, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, g := range generations {
			pipe.Incr(ctx, g)
		}
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		c.handleError(err, "invalidate")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// deletePattern deletes all keys matching a pattern using SCAN.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.delete(ctx, keys...); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// StrategyKey builds the cache key for a channel strategy.
func StrategyKey(channelID, tier string) string {
	return KeyStrategy + channelID + ":" + tier
}

// GetStrategy returns a cached strategy. On a miss the returned Version must
// be passed to SetStrategy after loading from the database.
func (c *Cache) GetStrategy(ctx context.Context, channelID, tier string) (sequencer.Strategy, Version, bool) {
	v, ok := c.version(ctx, strategyGenerations(channelID, tier))
	if !ok {
		return sequencer.Strategy{}, Version{}, false
	}
	var s sequencer.Strategy
	if !c.get(ctx, StrategyKey(channelID, tier), &s) {
		return sequencer.Strategy{}, v, false
	}
	c.logger.Debug().Str("channel_id", channelID).Str("tier", tier).Msg("strategy cache hit")
	return s, v, true
}

// SetStrategy stores a strategy read under v. It returns ErrStale when the
// strategy was invalidated in the meantime.
func (c *Cache) SetStrategy(ctx context.Context, channelID, tier string, v Version, s sequencer.Strategy) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.setIfCurrent(ctx, v, StrategyKey(channelID, tier), s, c.ttl(c.config.StrategyTTL, DefaultStrategyTTL))
}

// InvalidateStrategy drops one strategy, or every tier of the channel when tier is empty.
func (c *Cache) InvalidateStrategy(ctx context.Context, channelID, tier string) error {
	if tier == "" {
		if err := c.bump(ctx, strategyGenerations(channelID, "")[:1]); err != nil {
			return err
		}
		return c.deletePattern(ctx, KeyStrategy+channelID+":*")
	}
	return c.bump(ctx, strategyGenerations(channelID, tier)[1:], StrategyKey(channelID, tier))
}

// GetCatalog returns the cached catalog snapshot and the Version to fill with
// on a miss.
func (c *Cache) GetCatalog(ctx context.Context) ([]track.Track, Version, bool) {
	v, ok := c.version(ctx, catalogGenerations())
	if !ok {
		return nil, Version{}, false
	}
	var tracks []track.Track
	if !c.get(ctx, KeyCatalog, &tracks) {
		return nil, v, false
	}
	return tracks, v, true
}

// SetCatalog stores a catalog snapshot read under v.
func (c *Cache) SetCatalog(ctx context.Context, v Version, tracks []track.Track) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.setIfCurrent(ctx, v, KeyCatalog, tracks, c.ttl(c.config.CatalogTTL, DefaultCatalogTTL))
}

// InvalidateCatalog drops the catalog snapshot.
func (c *Cache) InvalidateCatalog(ctx context.Context) error {
	return c.bump(ctx, catalogGenerations(), KeyCatalog)
}

func (c *Cache) ttl(configured, def time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return def
}
