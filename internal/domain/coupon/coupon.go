package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/discount"
)

var (
	// ErrInvalidCoupon is returned when a coupon code is not found or the
	// coupon is inactive.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon is outside its valid time window.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrAlreadyRedeemed is returned when this customer already redeemed the
	// coupon, including when a concurrent finalization won the redemption race.
	ErrAlreadyRedeemed = errors.New("coupon already redeemed by customer")
)

// Coupon is a vendor-scoped, time-boxed, single-use-per-customer discount
// code. Uses carries the monotonic usage counter; the per-customer ledger
// lives in storage and is consulted through Redeemer.
type Coupon struct {
	ID            string
	Code          string
	VendorID      string
	DiscountType  discount.Type
	DiscountValue decimal.Decimal
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	MaxUses       int
	Uses          int
	Active        bool
}

// Validate checks whether the coupon can be applied at the given instant.
func (c *Coupon) Validate(at time.Time) error {
	if c == nil || !c.Active {
		return ErrInvalidCoupon
	}
	if c.ValidFrom != nil && at.Before(*c.ValidFrom) {
		return ErrCouponExpired
	}
	if c.ValidUntil != nil && at.After(*c.ValidUntil) {
		return ErrCouponExpired
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return ErrUsageLimitReached
	}
	return nil
}

// Repository provides live coupon lookups. Pricing never trusts a cached
// coupon; it re-fetches by ID on every recomputation.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	HasRedeemed(ctx context.Context, couponID, customerID string) (bool, error)
}
