// Package cache provides a Redis read-through cache for catalog listings.
// The catalog (sports, cities, centres, terrains) changes rarely and is
// read on nearly every session, so short TTLs buy a lot.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Catalog caches JSON-encoded listing results. A nil Catalog is valid and
// behaves as a permanent miss, so callers never branch on whether caching
// is enabled.
type Catalog struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New constructs a catalog cache around an existing Redis client.
func New(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Catalog {
	return &Catalog{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Cache keys. Listing keys embed their filter parameters.
const (
	KeySports = "catalog:sports"
	KeyCities = "catalog:cities"
)

// KeyCentres is the cache key for the centres of a city.
func KeyCentres(cityID int64) string {
	return fmt.Sprintf("catalog:centres:%d", cityID)
}

// KeyTerrains is the cache key for terrains filtered by sport and centre.
func KeyTerrains(sportID, centreID int64) string {
	return fmt.Sprintf("catalog:terrains:%d:%d", sportID, centreID)
}

// Get loads a cached value into v. Returns false on miss, decode failure,
// or any Redis error; the caller falls through to the store.
func (c *Catalog) Get(ctx context.Context, key string, v any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry corrupt")
		return false
	}
	return true
}

// Set stores v under key. Failures are logged and swallowed; the cache is
// never allowed to fail a request.
func (c *Catalog) Set(ctx context.Context, key string, v any) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
