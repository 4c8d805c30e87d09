package domain

import (
	"context"
	"time"
)

// Cache defines the interface for the catalog price cache sitting in front
// of the repository. Supports two-phase caching: local LRU plus Redis.
// All methods require retailerID for strict per-retailer isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, retailerID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, retailerID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, retailerID string, key string) error

	// GetProductPrice retrieves a cached catalog price.
	// Returns nil, nil on a miss.
	GetProductPrice(ctx context.Context, retailerID string, productID string) (*float64, error)

	// SetProductPrice caches a catalog price for original-price resolution
	// at checkout.
	SetProductPrice(ctx context.Context, retailerID string, productID string, price float64, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size"`
	LocalTTL     time.Duration `yaml:"local_ttl"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enable_two_phase"` // If true, check local first, then Redis
}
