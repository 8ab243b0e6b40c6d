package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrZeroTotal signals a computation-integrity failure: an order can
	// never be worth zero or less.
	ErrZeroTotal = errors.New("order total is zero or negative")
	// ErrMissingAddress is returned when a checkout names no usable address.
	ErrMissingAddress = errors.New("shipping address is required")
	// ErrMissingVendor signals a line without a vendor reference, which
	// should never survive pricing.
	ErrMissingVendor = errors.New("order line has no vendor reference")
	// ErrDuplicatePayment means an order for the payment already exists.
	// Storage returns it when the orders insert loses a concurrent
	// finalization race to the payment_id unique index, which the
	// in-transaction guard read cannot see before the winner commits.
	ErrDuplicatePayment = errors.New("order already exists for payment")
)

// InsufficientStockError indicates the conditional stock decrement matched no
// rows: the product does not have the requested quantity available.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s, available: %d", e.ProductID, e.Available)
}

// Status tracks the order lifecycle. Delivered, cancelled, and returned are
// terminal.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusReturned  Status = "returned"
)

// ShipmentStatus tracks one vendor's shipment within an order.
type ShipmentStatus string

const (
	ShipmentPending    ShipmentStatus = "pending"
	ShipmentDispatched ShipmentStatus = "dispatched"
	ShipmentDelivered  ShipmentStatus = "delivered"
)

// Shipment is one vendor's slice of an order.
type Shipment struct {
	ID         string
	OrderID    string
	VendorID   string
	Status     ShipmentStatus
	TrackingID string
}

// Order is an immutable record of a finalized purchase. Lines carry the full
// per-line discount and tax breakdown copied from the priced snapshot the
// customer approved; the finalizer never recomputes them.
type Order struct {
	ID         string
	CustomerID string
	PaymentID  string
	AddressID  string

	Lines []pricing.LineBreakdown

	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	GrandTotal decimal.Decimal

	CouponID       string
	CouponDiscount decimal.Decimal

	Shipments []Shipment
	Status    Status
	CreatedAt time.Time
}

// VendorIDs returns the distinct vendors across the order's lines, in line
// order.
func (o *Order) VendorIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	out := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.VendorID]; ok {
			continue
		}
		seen[l.VendorID] = struct{}{}
		out = append(out, l.VendorID)
	}
	return out
}

// ProductIDs returns the distinct products across the order's lines.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	out := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}

// Repository defines read operations for orders outside the finalization
// transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
}
