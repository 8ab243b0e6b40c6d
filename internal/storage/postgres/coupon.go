package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/discount"
)

const (
	couponColumns = `id, code, vendor_id, discount_type, discount_value,
		valid_from, valid_until, max_uses, uses, active`

	getCouponByIDSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	hasRedeemedSQL = `SELECT EXISTS (
		SELECT 1 FROM coupon_redemptions WHERE coupon_id = $1 AND customer_id = $2)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByID returns a coupon by its identifier.
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponByIDSQL, id)
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidCoupon when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponByCodeSQL, code)
}

// HasRedeemed reports whether the customer already appears in the coupon's
// usage ledger. Apply-time eligibility only; the finalizer's conditional
// redemption is what prevents races.
func (r *CouponRepository) HasRedeemed(ctx context.Context, couponID, customerID string) (bool, error) {
	var redeemed bool
	if err := r.pool.QueryRow(ctx, hasRedeemedSQL, couponID, customerID).Scan(&redeemed); err != nil {
		return false, fmt.Errorf("checking redemption for coupon %q: %w", couponID, err)
	}
	return redeemed, nil
}

func (r *CouponRepository) one(ctx context.Context, sql, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon %q: %w", arg, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		typ        string
		value      decimal.Decimal
		validFrom  *time.Time
		validUntil *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.VendorID, &typ, &value,
		&validFrom, &validUntil, &c.MaxUses, &c.Uses, &c.Active,
	)
	c.DiscountType = discount.Type(typ)
	c.DiscountValue = value
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
