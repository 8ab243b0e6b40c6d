package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/pricing"
)

// ErrNotFound is returned when no cart exists for the given owner.
var ErrNotFound = errors.New("cart not found")

// Status tracks the cart lifecycle for abandoned-cart recovery.
type Status string

const (
	StatusActive    Status = "active"
	StatusAbandoned Status = "abandoned"
	StatusRecovered Status = "recovered"
)

// Owner identifies who a cart belongs to: an authenticated customer or an
// anonymous session, never both.
type Owner struct {
	CustomerID string
	SessionID  string
}

// Guest reports whether the owner is an anonymous session.
func (o Owner) Guest() bool { return o.CustomerID == "" }

// Line is one product+quantity entry in a cart.
type Line struct {
	ProductID string          `json:"product_id"`
	VendorID  string          `json:"vendor_id"`
	Quantity  int             `json:"quantity"`
	// PriceAtAddition records the list price when the line was added, for
	// display only. Pricing always re-fetches the live price.
	PriceAtAddition decimal.Decimal `json:"price_at_addition"`
	// FrozenPrice is set for upsell/cross-sell lines; such lines are priced
	// at exactly this value and skip all discount stages.
	FrozenPrice *decimal.Decimal `json:"frozen_price,omitempty"`
}

// AppliedCoupon is a reference plus cached display fields. It is re-validated
// on every recomputation and never trusted for money math.
type AppliedCoupon struct {
	CouponID  string    `json:"coupon_id"`
	Code      string    `json:"code"`
	AppliedAt time.Time `json:"applied_at"`
}

// Cart is the mutable pre-order state for one owner.
type Cart struct {
	ID        string
	Owner     Owner
	Lines     []Line
	Coupon    *AppliedCoupon
	Snapshot  *pricing.Snapshot
	Status    Status
	UpdatedAt time.Time
}

// LineIndex returns the index of the line holding productID, or -1.
func (c *Cart) LineIndex(productID string) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// PricingLines converts the cart's lines to the pricing engine's input form.
func (c *Cart) PricingLines() []pricing.Line {
	out := make([]pricing.Line, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = pricing.Line{
			ProductID:   l.ProductID,
			Quantity:    l.Quantity,
			FrozenPrice: l.FrozenPrice,
		}
	}
	return out
}

// Repository defines persistence operations for carts.
type Repository interface {
	// FindByOwner returns the active cart for the owner, or ErrNotFound.
	FindByOwner(ctx context.Context, owner Owner) (*Cart, error)
	// Save upserts the cart including its lines and snapshot.
	Save(ctx context.Context, c *Cart) error
	// Delete removes the cart entirely.
	Delete(ctx context.Context, id string) error
}
