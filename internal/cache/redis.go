package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tradecart/marketplace/internal/domain/product"
)

const catalogKey = "catalog:products"

// RedisCatalog caches the product listing in Redis with a jittered TTL so a
// fleet of instances does not refill the key in lockstep.
type RedisCatalog struct {
	client  *redis.Client
	baseTTL time.Duration
}

var _ Catalog = (*RedisCatalog)(nil)

// NewRedisCatalog creates a catalog cache over the given client.
func NewRedisCatalog(client *redis.Client) *RedisCatalog {
	return &RedisCatalog{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (c *RedisCatalog) Get(ctx context.Context) ([]product.Product, error) {
	data, err := c.client.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var products []product.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal cached catalog failed: %w", err)
	}
	return products, nil
}

func (c *RedisCatalog) Set(ctx context.Context, products []product.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal catalog failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := c.client.Set(ctx, catalogKey, data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCatalog) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
