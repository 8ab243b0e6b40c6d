package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/pricing"
)

const (
	cartColumns = `id, customer_id, session_id, coupon_id, coupon_code, lines, snapshot, status, updated_at`

	findCartByCustomerSQL = `SELECT ` + cartColumns + ` FROM carts WHERE customer_id = $1`
	findCartBySessionSQL  = `SELECT ` + cartColumns + ` FROM carts WHERE session_id = $1`

	upsertCartSQL = `INSERT INTO carts (id, customer_id, session_id, coupon_id, coupon_code, lines, snapshot, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			coupon_id = EXCLUDED.coupon_id,
			coupon_code = EXCLUDED.coupon_code,
			lines = EXCLUDED.lines,
			snapshot = EXCLUDED.snapshot,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	deleteCartSQL = `DELETE FROM carts WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Lines and
// the priced snapshot are stored as JSONB.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// FindByOwner returns the cart for a customer or session.
// Returns cart.ErrNotFound when no cart exists.
func (r *CartRepository) FindByOwner(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	sql, arg := findCartByCustomerSQL, owner.CustomerID
	if owner.Guest() {
		sql, arg = findCartBySessionSQL, owner.SessionID
	}

	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding cart: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	return c, nil
}

// Save upserts the cart including lines and snapshot.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	linesJSON, snapJSON, couponID, couponCode, err := encodeCart(c)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, upsertCartSQL,
		c.ID, c.Owner.CustomerID, c.Owner.SessionID,
		couponID, couponCode, linesJSON, snapJSON, string(c.Status), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving cart %q: %w", c.ID, err)
	}
	return nil
}

// Delete removes the cart entirely (used when merging a session cart away).
func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteCartSQL, id); err != nil {
		return fmt.Errorf("deleting cart %q: %w", id, err)
	}
	return nil
}

func encodeCart(c *cart.Cart) (linesJSON, snapJSON []byte, couponID, couponCode string, err error) {
	linesJSON, err = json.Marshal(c.Lines)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("marshaling cart lines: %w", err)
	}
	if c.Snapshot != nil {
		snapJSON, err = json.Marshal(c.Snapshot)
		if err != nil {
			return nil, nil, "", "", fmt.Errorf("marshaling cart snapshot: %w", err)
		}
	}
	if c.Coupon != nil {
		couponID, couponCode = c.Coupon.CouponID, c.Coupon.Code
	}
	return linesJSON, snapJSON, couponID, couponCode, nil
}

func scanCart(row pgx.CollectableRow) (*cart.Cart, error) {
	var (
		c          cart.Cart
		couponID   string
		couponCode string
		linesJSON  []byte
		snapJSON   []byte
		status     string
		updatedAt  time.Time
	)
	err := row.Scan(
		&c.ID, &c.Owner.CustomerID, &c.Owner.SessionID,
		&couponID, &couponCode, &linesJSON, &snapJSON, &status, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &c.Lines); err != nil {
		return nil, fmt.Errorf("decoding cart lines: %w", err)
	}
	if len(snapJSON) > 0 {
		var snap pricing.Snapshot
		if err := json.Unmarshal(snapJSON, &snap); err != nil {
			return nil, fmt.Errorf("decoding cart snapshot: %w", err)
		}
		c.Snapshot = &snap
	}
	if couponID != "" {
		c.Coupon = &cart.AppliedCoupon{CouponID: couponID, Code: couponCode}
	}
	c.Status = cart.Status(status)
	c.UpdatedAt = updatedAt
	return &c, nil
}
