package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using Redis.
// Used as the distributed cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, retailerID string, key string) ([]byte, error) {
	if retailerID == "" {
		return nil, fmt.Errorf("retailerID is required")
	}

	fullKey := c.makeKey(retailerID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, retailerID string, key string, value []byte, ttl time.Duration) error {
	if retailerID == "" {
		return fmt.Errorf("retailerID is required")
	}

	fullKey := c.makeKey(retailerID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, retailerID string, key string) error {
	if retailerID == "" {
		return fmt.Errorf("retailerID is required")
	}

	fullKey := c.makeKey(retailerID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetProductPrice retrieves a cached catalog price.
func (c *RedisCache) GetProductPrice(ctx context.Context, retailerID string, productID string) (*float64, error) {
	data, err := c.Get(ctx, retailerID, "price:"+productID)
	if err != nil || data == nil {
		return nil, err
	}

	var price float64
	if err := json.Unmarshal(data, &price); err != nil {
		return nil, err
	}
	return &price, nil
}

// SetProductPrice caches a catalog price.
func (c *RedisCache) SetProductPrice(ctx context.Context, retailerID string, productID string, price float64, ttl time.Duration) error {
	bytes, err := json.Marshal(price)
	if err != nil {
		return err
	}
	return c.Set(ctx, retailerID, "price:"+productID, bytes, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(retailerID, key string) string {
	return "magpie:" + retailerID + ":" + key
}
