package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/openretail/magpie/internal/domain"
)

// New creates a new cache based on configuration.
// For single-store deployments: returns LRU cache.
// For distributed deployments with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For distributed deployments without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast catalog reads
// L2: Redis for distributed caching shared across lanes
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	local := NewLRUCache(cfg.LocalMaxSize)

	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, retailerID string, key string) ([]byte, error) {
	// Check L1 first
	val, err := c.local.Get(ctx, retailerID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	// Check L2
	val, err = c.remote.Get(ctx, retailerID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		// Populate L1 for future reads
		_ = c.local.Set(ctx, retailerID, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, retailerID string, key string, value []byte, ttl time.Duration) error {
	// Write to L1 with shorter TTL
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, retailerID, key, value, l1TTL); err != nil {
		return err
	}

	// Write to L2 with full TTL
	return c.remote.Set(ctx, retailerID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, retailerID string, key string) error {
	if err := c.local.Delete(ctx, retailerID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, retailerID, key)
}

// GetProductPrice retrieves a cached catalog price.
func (c *TwoPhaseCache) GetProductPrice(ctx context.Context, retailerID string, productID string) (*float64, error) {
	// Check L1 first
	price, err := c.local.GetProductPrice(ctx, retailerID, productID)
	if err != nil {
		return nil, err
	}
	if price != nil {
		return price, nil
	}

	// Check L2
	price, err = c.remote.GetProductPrice(ctx, retailerID, productID)
	if err != nil {
		return nil, err
	}
	if price != nil {
		// Populate L1
		_ = c.local.SetProductPrice(ctx, retailerID, productID, *price, c.l1TTL)
	}

	return price, nil
}

// SetProductPrice caches a catalog price in both L1 and L2.
func (c *TwoPhaseCache) SetProductPrice(ctx context.Context, retailerID string, productID string, price float64, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.SetProductPrice(ctx, retailerID, productID, price, l1TTL); err != nil {
		return err
	}
	return c.remote.SetProductPrice(ctx, retailerID, productID, price, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
