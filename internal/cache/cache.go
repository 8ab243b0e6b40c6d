// Package cache keeps the product catalog read path off Postgres. Carts and
// orders are never cached: every read of those reprices.
package cache

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/tradecart/marketplace/internal/domain/product"
)

// ErrCacheMiss is returned when the catalog is not cached.
var ErrCacheMiss = errors.New("cache: miss")

// Catalog stores the product listing.
type Catalog interface {
	Get(ctx context.Context) ([]product.Product, error)
	Set(ctx context.Context, products []product.Product) error
	Invalidate(ctx context.Context) error
}

// Noop satisfies Catalog when no cache backend is configured.
type Noop struct{}

var _ Catalog = Noop{}

func (Noop) Get(ctx context.Context) ([]product.Product, error) { return nil, ErrCacheMiss }
func (Noop) Set(ctx context.Context, _ []product.Product) error { return nil }
func (Noop) Invalidate(ctx context.Context) error               { return nil }
