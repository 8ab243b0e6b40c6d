package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/discount"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// TaxMode controls how tax is derived from a product's price.
type TaxMode string

const (
	// TaxExclusive means tax is added on top of the computed price.
	TaxExclusive TaxMode = "exclusive"
	// TaxInclusive means the computed price already contains tax.
	TaxInclusive TaxMode = "inclusive"
)

// Product represents a catalog item sold by a single vendor.
type Product struct {
	ID            string
	VendorID      string
	Name          string
	Price         decimal.Decimal
	DiscountType  discount.Type
	DiscountValue decimal.Decimal
	// FixedShipping is a per-unit shipping cost. When positive it overrides
	// the vendor's shipping rule for lines of this product.
	FixedShipping decimal.Decimal
	TaxMode       TaxMode
	Stock         int
	MinQuantity   int
	Active        bool
}

// DiscountedPrice returns the unit price after the product's own discount.
func (p Product) DiscountedPrice() decimal.Decimal {
	return discount.Apply(p.Price, p.DiscountType, p.DiscountValue)
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
