// Package payment models the settlement contract with external gateways. The
// gateway wire formats themselves live behind the Gateway interface.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a payment does not exist.
	ErrNotFound = errors.New("payment not found")
	// ErrMethodDisabled is returned when a checkout names a payment method
	// the platform does not accept.
	ErrMethodDisabled = errors.New("payment method is disabled")
)

// Method enumerates how a checkout is paid.
type Method string

const (
	// MethodCOD is cash on delivery: the payment settles immediately and the
	// order is finalized in the same request.
	MethodCOD Method = "cod"
	// MethodGateway defers settlement to an external payment gateway.
	MethodGateway Method = "gateway"
)

// Status tracks the payment lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Payment records one checkout attempt's settlement state. IdempotencyKey is
// client-generated: a retried gateway call for the same checkout attempt maps
// back to the same payment instead of creating a second one.
type Payment struct {
	ID             string
	CustomerID     string
	AddressID      string
	Method         Method
	Status         Status
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	GatewayRef     string
	CreatedAt      time.Time
}

// GatewayHandle is what a gateway returns for a deferred payment: an opaque
// reference the client completes the payment with.
type GatewayHandle struct {
	Reference string
	ClientKey string
}

// Gateway creates charges with an external payment provider. Implementations
// must pass the idempotency key through so provider-side retries are safe.
type Gateway interface {
	CreateCharge(ctx context.Context, amount decimal.Decimal, currency, idempotencyKey string) (*GatewayHandle, error)
}

// Repository defines persistence operations for payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	// GetByIdempotencyKey returns the payment created by a previous attempt
	// with the same key, or ErrNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	// UpdateStatus records a settlement outcome outside the finalization
	// transaction (failed payments never reach the finalizer).
	UpdateStatus(ctx context.Context, id string, status Status) error
	// SetGatewayRef stores the gateway handle created for a deferred payment.
	SetGatewayRef(ctx context.Context, id, ref string) error
}
