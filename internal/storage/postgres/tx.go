package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/order"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/vendor"
)

const (
	// Conditional decrement: matches only when enough stock remains, so the
	// reservation and the check are one atomic write.
	reserveStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	stockAvailableSQL = `SELECT stock FROM products WHERE id = $1`

	createOrderSQL = `INSERT INTO orders (id, customer_id, payment_id, address_id, lines, subtotal,
			discount, tax, shipping, grand_total, coupon_id, coupon_discount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	createShipmentSQL = `INSERT INTO shipments (id, order_id, vendor_id, status, tracking_id)
		VALUES ($1, $2, $3, $4, $5)`

	// The ledger's primary key (coupon_id, customer_id) makes this insert
	// the single conditional write that decides a redemption race.
	redeemLedgerSQL = `INSERT INTO coupon_redemptions (coupon_id, customer_id, order_id)
		VALUES ($1, $2, $3) ON CONFLICT (coupon_id, customer_id) DO NOTHING`

	incrementUsesSQL = `UPDATE coupons SET uses = uses + 1 WHERE id = $1`

	cartLinesForUpdateSQL = `SELECT lines FROM carts WHERE customer_id = $1 OR (session_id <> '' AND session_id = $2) FOR UPDATE`

	updateCartLinesSQL = `UPDATE carts SET lines = $3, updated_at = now()
		WHERE customer_id = $1 OR (session_id <> '' AND session_id = $2)`

	markPaymentPaidSQL = `UPDATE payments SET status = 'paid' WHERE id = $1 AND status <> 'paid'`
)

var _ order.TxStore = (*TxStore)(nil)

// TxStore implements order.TxStore: each finalization runs inside a single
// pgx transaction, so all writes commit or none do.
type TxStore struct {
	pool *pgxpool.Pool
}

// NewTxStore returns a TxStore that uses the given pool.
func NewTxStore(pool *pgxpool.Pool) *TxStore {
	return &TxStore{pool: pool}
}

// WithinTx runs fn inside one transaction, committing on nil and rolling back
// on error.
func (s *TxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgxTx pgx.Tx) error {
		return fn(ctx, &finalizeTx{tx: pgxTx})
	})
}

// finalizeTx implements order.Tx over one pgx transaction.
type finalizeTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*finalizeTx)(nil)

func (t *finalizeTx) FindOrderByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return collectOrder(ctx, t.tx, findOrderByPaymentSQL, paymentID)
}

func (t *finalizeTx) GetProducts(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (t *finalizeTx) GetVendors(ctx context.Context, ids []string) ([]vendor.Vendor, error) {
	rows, err := t.tx.Query(ctx, getVendorsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting vendors by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVendor)
}

// ReserveStock decrements stock only if at least qty units remain. A zero-row
// update means insufficient stock and aborts the transaction; the remaining
// count is read only to produce an actionable error message.
func (t *finalizeTx) ReserveStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx, reserveStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("reserving stock for product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		available := 0
		if err := t.tx.QueryRow(ctx, stockAvailableSQL, productID).Scan(&available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return product.ErrNotFound
			}
			return fmt.Errorf("reading stock for product %q: %w", productID, err)
		}
		return &order.InsufficientStockError{ProductID: productID, Available: available}
	}
	return nil
}

func (t *finalizeTx) CreateOrder(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	_, err = t.tx.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, o.PaymentID, o.AddressID, linesJSON,
		o.Subtotal, o.Discount, o.Tax, o.Shipping, o.GrandTotal,
		o.CouponID, o.CouponDiscount, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		// Unique violation on orders.payment_id: a concurrent finalization
		// for the same payment committed first.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.Wrapf(order.ErrDuplicatePayment, "payment %s", o.PaymentID)
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, sh := range o.Shipments {
		_, err := t.tx.Exec(ctx, createShipmentSQL,
			sh.ID, sh.OrderID, sh.VendorID, string(sh.Status), sh.TrackingID)
		if err != nil {
			return fmt.Errorf("creating shipment %q: %w", sh.ID, err)
		}
	}
	return nil
}

// RedeemCouponOnce appends the per-customer ledger entry and bumps the usage
// counter. A conflicting ledger row means another finalization redeemed first;
// the whole transaction aborts rather than granting a double discount.
func (t *finalizeTx) RedeemCouponOnce(ctx context.Context, couponID, customerID, orderID string) error {
	tag, err := t.tx.Exec(ctx, redeemLedgerSQL, couponID, customerID, orderID)
	if err != nil {
		return fmt.Errorf("appending redemption ledger for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrAlreadyRedeemed
	}
	if _, err := t.tx.Exec(ctx, incrementUsesSQL, couponID); err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", couponID, err)
	}
	return nil
}

// RemoveCartLines drops the ordered products from the owner's cart row under
// a row lock. The snapshot is recomputed by the caller after commit; every
// read reprices, so a stale snapshot is never trusted for money.
func (t *finalizeTx) RemoveCartLines(ctx context.Context, owner cart.Owner, productIDs []string) error {
	var linesJSON []byte
	err := t.tx.QueryRow(ctx, cartLinesForUpdateSQL, owner.CustomerID, owner.SessionID).Scan(&linesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("locking cart lines: %w", err)
	}

	var lines []cart.Line
	if err := json.Unmarshal(linesJSON, &lines); err != nil {
		return fmt.Errorf("decoding cart lines: %w", err)
	}

	drop := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}
	kept := lines[:0]
	for _, l := range lines {
		if _, ok := drop[l.ProductID]; !ok {
			kept = append(kept, l)
		}
	}

	updated, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("marshaling cart lines: %w", err)
	}
	if _, err := t.tx.Exec(ctx, updateCartLinesSQL, owner.CustomerID, owner.SessionID, updated); err != nil {
		return fmt.Errorf("updating cart lines: %w", err)
	}
	return nil
}

func (t *finalizeTx) MarkPaymentPaid(ctx context.Context, paymentID string) error {
	if _, err := t.tx.Exec(ctx, markPaymentPaidSQL, paymentID); err != nil {
		return fmt.Errorf("marking payment %q paid: %w", paymentID, err)
	}
	return nil
}
