package cache

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/product"
)

// Products is a read-through decorator over the product repository. Only the
// full listing goes through the cache; lookups by id stay on the database so
// pricing always sees live stock and discounts.
type Products struct {
	repo    product.Repository
	catalog Catalog
}

var _ product.Repository = (*Products)(nil)

// NewProducts wraps repo with the catalog cache.
func NewProducts(repo product.Repository, catalog Catalog) *Products {
	return &Products{repo: repo, catalog: catalog}
}

func (p *Products) List(ctx context.Context) ([]product.Product, error) {
	cached, err := p.catalog.Get(ctx)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		zctx.From(ctx).Warn("catalog cache read failed", zap.Error(err))
	}

	products, err := p.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.catalog.Set(ctx, products); err != nil {
		zctx.From(ctx).Warn("catalog cache fill failed", zap.Error(err))
	}
	return products, nil
}

func (p *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return p.repo.GetByID(ctx, id)
}

func (p *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return p.repo.GetByIDs(ctx, ids)
}
