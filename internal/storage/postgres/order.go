package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, payment_id, address_id, lines, subtotal, discount, tax,
		shipping, grand_total, coupon_id, coupon_discount, status, created_at`

	getOrderByIDSQL        = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	findOrderByPaymentSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = $1`
	listOrdersByCustomer   = `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`
	listShipmentsByOrder   = `SELECT id, order_id, vendor_id, status, tracking_id FROM shipments WHERE order_id = $1 ORDER BY id`
	markShipmentDispatched = `UPDATE shipments SET status = 'dispatched', tracking_id = $2 WHERE id = $1 AND status = 'pending'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// per-line breakdown is stored as JSONB so every discount layer survives for
// audit.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns a single order with its shipments.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	o, err := collectOrder(ctx, r.pool, getOrderByIDSQL, id)
	if err != nil {
		return nil, err
	}
	return r.withShipments(ctx, o)
}

// FindByPaymentID returns the order created for the given payment, or
// order.ErrNotFound.
func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	o, err := collectOrder(ctx, r.pool, findOrderByPaymentSQL, paymentID)
	if err != nil {
		return nil, err
	}
	return r.withShipments(ctx, o)
}

// ListByCustomer returns the customer's orders, newest first, without
// shipment sub-records.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomer, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	ptrs, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	out := make([]order.Order, len(ptrs))
	for i, o := range ptrs {
		out[i] = *o
	}
	return out, nil
}

// MarkShipmentDispatched flips a pending shipment to dispatched with its
// tracking id. Already-dispatched shipments are left untouched.
func (r *OrderRepository) MarkShipmentDispatched(ctx context.Context, shipmentID, trackingID string) error {
	if _, err := r.pool.Exec(ctx, markShipmentDispatched, shipmentID, trackingID); err != nil {
		return fmt.Errorf("marking shipment %q dispatched: %w", shipmentID, err)
	}
	return nil
}

func (r *OrderRepository) withShipments(ctx context.Context, o *order.Order) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, listShipmentsByOrder, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing shipments for order %q: %w", o.ID, err)
	}
	o.Shipments, err = pgx.CollectRows(rows, scanShipment)
	if err != nil {
		return nil, fmt.Errorf("listing shipments for order %q: %w", o.ID, err)
	}
	return o, nil
}

func collectOrder(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, sql, arg string) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order: %w", err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o         order.Order
		linesJSON []byte
		status    string
		amounts   [6]decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.PaymentID, &o.AddressID, &linesJSON,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&o.CouponID, &amounts[5], &status, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return nil, fmt.Errorf("decoding order lines: %w", err)
	}
	o.Subtotal = amounts[0]
	o.Discount = amounts[1]
	o.Tax = amounts[2]
	o.Shipping = amounts[3]
	o.GrandTotal = amounts[4]
	o.CouponDiscount = amounts[5]
	o.Status = order.Status(status)
	return &o, nil
}

func scanShipment(row pgx.CollectableRow) (order.Shipment, error) {
	var (
		s      order.Shipment
		status string
	)
	err := row.Scan(&s.ID, &s.OrderID, &s.VendorID, &status, &s.TrackingID)
	s.Status = order.ShipmentStatus(status)
	return s, err
}
