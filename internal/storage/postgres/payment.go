package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/payment"
)

const (
	paymentColumns = `id, customer_id, address_id, method, status, amount, currency, idempotency_key, gateway_ref, created_at`

	createPaymentSQL = `INSERT INTO payments (id, customer_id, address_id, method, status, amount, currency, idempotency_key, gateway_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getPaymentByIDSQL  = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	getPaymentByKeySQL = `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`

	updatePaymentStatusSQL = `UPDATE payments SET status = $2 WHERE id = $1`
	setGatewayRefSQL       = `UPDATE payments SET gateway_ref = $2 WHERE id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a new payment. The unique constraint on idempotency_key
// rejects duplicate checkout attempts at the storage level.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.pool.Exec(ctx, createPaymentSQL,
		p.ID, p.CustomerID, p.AddressID, string(p.Method), string(p.Status),
		p.Amount, p.Currency, p.IdempotencyKey, p.GatewayRef, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a payment by its identifier.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.one(ctx, getPaymentByIDSQL, id)
}

// GetByIdempotencyKey returns the payment created by a previous checkout
// attempt with the same key.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return r.one(ctx, getPaymentByKeySQL, key)
}

// UpdateStatus records a settlement outcome.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status payment.Status) error {
	if _, err := r.pool.Exec(ctx, updatePaymentStatusSQL, id, string(status)); err != nil {
		return fmt.Errorf("updating payment %q status: %w", id, err)
	}
	return nil
}

// SetGatewayRef stores the gateway handle for a deferred payment.
func (r *PaymentRepository) SetGatewayRef(ctx context.Context, id, ref string) error {
	if _, err := r.pool.Exec(ctx, setGatewayRefSQL, id, ref); err != nil {
		return fmt.Errorf("setting gateway ref for payment %q: %w", id, err)
	}
	return nil
}

func (r *PaymentRepository) one(ctx context.Context, sql, arg string) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding payment: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("finding payment: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.CollectableRow) (*payment.Payment, error) {
	var (
		p      payment.Payment
		method string
		status string
		amount decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.CustomerID, &p.AddressID, &method, &status,
		&amount, &p.Currency, &p.IdempotencyKey, &p.GatewayRef, &p.CreatedAt,
	)
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	p.Amount = amount
	return &p, err
}
