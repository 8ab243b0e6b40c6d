package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/payment"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/vendor"
)

// Tx is the set of writes available inside one finalization transaction.
// Either all of them commit or none do. ReserveStock and RedeemCouponOnce are
// conditional updates: the atomicity contract lives in the operation name,
// not in query construction.
type Tx interface {
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	GetProducts(ctx context.Context, ids []string) ([]product.Product, error)
	GetVendors(ctx context.Context, ids []string) ([]vendor.Vendor, error)
	// ReserveStock decrements stock only if at least qty units remain.
	// A zero-row update surfaces as *InsufficientStockError.
	ReserveStock(ctx context.Context, productID string, qty int) error
	// CreateOrder persists the order and its shipments. Losing the
	// payment-id uniqueness race surfaces as ErrDuplicatePayment.
	CreateOrder(ctx context.Context, o *Order) error
	// RedeemCouponOnce increments the coupon's usage counter and appends the
	// per-customer ledger entry only if the customer is not already present.
	// A zero-row update surfaces as coupon.ErrAlreadyRedeemed.
	RedeemCouponOnce(ctx context.Context, couponID, customerID, orderID string) error
	RemoveCartLines(ctx context.Context, owner cart.Owner, productIDs []string) error
	MarkPaymentPaid(ctx context.Context, paymentID string) error
}

// TxStore runs a function inside a single atomic transaction.
type TxStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ShipmentJob is handed to the dispatcher for one vendor's shipment.
type ShipmentJob struct {
	ShipmentID string                  `json:"shipment_id"`
	OrderID    string                  `json:"order_id"`
	VendorID   string                  `json:"vendor_id"`
	Lines      []pricing.LineBreakdown `json:"lines"`
}

// Dispatcher hands shipment jobs to the fulfilment pipeline. Enqueue is the
// asynchronous path; DispatchSync is the fallback when enqueueing fails.
// At-least-once semantics are sufficient.
type Dispatcher interface {
	Enqueue(ctx context.Context, job ShipmentJob) error
	DispatchSync(ctx context.Context, job ShipmentJob) error
}

// Notifier sends order confirmations. Fire-and-forget: failures are logged at
// the call site and never propagate.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order) error
	VendorOrderReceived(ctx context.Context, vendorID string, o *Order) error
	AdminOrderPlaced(ctx context.Context, o *Order) error
}

// CartMaintainer covers the post-commit cart bookkeeping.
type CartMaintainer interface {
	Refresh(ctx context.Context, buyer pricing.Buyer) error
	MarkRecovered(ctx context.Context, buyer pricing.Buyer) error
}

// FinalizeRequest carries a settled (or COD-immediate) payment and the priced
// cart it pays for.
type FinalizeRequest struct {
	Payment *payment.Payment
	Cart    *cart.Cart
	Buyer   pricing.Buyer
}

// Finalizer converts a priced cart plus a settled payment into a durable
// order, exactly once per payment.
type Finalizer struct {
	store      TxStore
	dispatcher Dispatcher
	notifier   Notifier
	carts      CartMaintainer
	finalized  metric.Int64Counter
	now        func() time.Time
}

// NewFinalizer creates a Finalizer. The counter may be a noop meter's
// instrument in tests.
func NewFinalizer(store TxStore, dispatcher Dispatcher, notifier Notifier, carts CartMaintainer, finalized metric.Int64Counter) *Finalizer {
	return &Finalizer{
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		carts:      carts,
		finalized:  finalized,
		now:        time.Now,
	}
}

// Finalize runs the order-creation state machine inside one atomic
// transaction: idempotency guard, line validation plus conditional stock
// reservation, order persistence from the approved snapshot, one-shot coupon
// redemption, cart line removal, payment marking. Stock and coupon conflicts
// abort the whole transaction; nothing partial is ever persisted.
//
// Dispatch, notifications, and cart bookkeeping run strictly after commit and
// never undo the order.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (*Order, error) {
	snap := req.Cart.Snapshot
	if snap == nil || len(snap.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}
	if !snap.GrandTotal.IsPositive() {
		return nil, errors.Wrapf(ErrZeroTotal, "payment %s", req.Payment.ID)
	}

	var (
		result   *Order
		existing bool
	)
	err := f.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		// Idempotency guard: a concurrent or retried finalization for the
		// same payment observes the existing order and changes nothing.
		found, err := tx.FindOrderByPaymentID(ctx, req.Payment.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return errors.Wrap(err, "idempotency guard")
		}
		if found != nil {
			result, existing = found, true
			return nil
		}

		o := buildOrder(req, f.now())

		if err := f.validateAndReserve(ctx, tx, o); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if snap.CouponID != "" {
			if err := tx.RedeemCouponOnce(ctx, snap.CouponID, o.CustomerID, o.ID); err != nil {
				return errors.Wrap(err, "redeem coupon")
			}
		}
		if err := tx.RemoveCartLines(ctx, req.Cart.Owner, o.ProductIDs()); err != nil {
			return errors.Wrap(err, "clear cart lines")
		}
		if req.Payment.Status != payment.StatusPaid {
			if err := tx.MarkPaymentPaid(ctx, req.Payment.ID); err != nil {
				return errors.Wrap(err, "mark payment paid")
			}
		}

		result = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			// A concurrent finalization committed between this transaction's
			// guard read and its orders insert. Duplicate finalization is
			// success: return the winner's order without side effects.
			return f.committedOrder(ctx, req.Payment.ID)
		}
		return nil, err
	}

	if !existing {
		f.finalized.Add(ctx, 1, metric.WithAttributes(
			attribute.String("payment.method", string(req.Payment.Method)),
		))
		f.afterCommit(ctx, result, req.Buyer)
	}
	return result, nil
}

// committedOrder re-reads the order a concurrent finalization committed. The
// losing transaction has already rolled back, so a fresh transaction sees the
// winner's row.
func (f *Finalizer) committedOrder(ctx context.Context, paymentID string) (*Order, error) {
	var found *Order
	err := f.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.FindOrderByPaymentID(ctx, paymentID)
		if err != nil {
			return errors.Wrap(err, "lookup finalized order")
		}
		found = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// validateAndReserve checks every line's product and vendor and atomically
// reserves stock. Any failure aborts the transaction, so a multi-line order
// never decrements stock partially.
func (f *Finalizer) validateAndReserve(ctx context.Context, tx Tx, o *Order) error {
	products, err := tx.GetProducts(ctx, o.ProductIDs())
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	vendors, err := tx.GetVendors(ctx, o.VendorIDs())
	if err != nil {
		return errors.Wrap(err, "load vendors")
	}
	vendorByID := make(map[string]vendor.Vendor, len(vendors))
	for _, v := range vendors {
		vendorByID[v.ID] = v
	}

	for _, l := range o.Lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.Active {
			return &pricing.ProductUnavailableError{ProductID: l.ProductID}
		}
		if p.VendorID == "" {
			return errors.Wrapf(ErrMissingVendor, "product %s", l.ProductID)
		}
		v, ok := vendorByID[p.VendorID]
		if !ok || !v.Active {
			return errors.Wrapf(vendor.ErrNotFound, "vendor %s for product %s", p.VendorID, l.ProductID)
		}
		if err := tx.ReserveStock(ctx, l.ProductID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// afterCommit runs the best-effort side effects. Failures are logged and
// swallowed: the order is already durable.
func (f *Finalizer) afterCommit(ctx context.Context, o *Order, buyer pricing.Buyer) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	for _, sh := range o.Shipments {
		job := shipmentJob(o, sh)
		if err := f.dispatcher.Enqueue(ctx, job); err != nil {
			lg.Warn("shipment enqueue failed, falling back to sync dispatch",
				zap.String("shipment_id", sh.ID), zap.Error(err))
			if err := f.dispatcher.DispatchSync(ctx, job); err != nil {
				lg.Error("sync shipment dispatch failed, needs manual reconciliation",
					zap.String("shipment_id", sh.ID), zap.Error(err))
			}
		}
	}

	if err := f.notifier.OrderConfirmed(ctx, o); err != nil {
		lg.Warn("customer confirmation failed", zap.Error(err))
	}
	for _, vendorID := range o.VendorIDs() {
		if err := f.notifier.VendorOrderReceived(ctx, vendorID, o); err != nil {
			lg.Warn("vendor notification failed", zap.String("vendor_id", vendorID), zap.Error(err))
		}
	}
	if err := f.notifier.AdminOrderPlaced(ctx, o); err != nil {
		lg.Warn("admin notification failed", zap.Error(err))
	}

	if err := f.carts.Refresh(ctx, buyer); err != nil {
		lg.Warn("cart refresh failed", zap.Error(err))
	}
	if err := f.carts.MarkRecovered(ctx, buyer); err != nil {
		lg.Warn("abandoned cart flip failed", zap.Error(err))
	}
}

// buildOrder copies the approved snapshot into an immutable order with one
// pending shipment per vendor.
func buildOrder(req FinalizeRequest, at time.Time) *Order {
	snap := req.Cart.Snapshot
	o := &Order{
		ID:             uuid.New().String(),
		CustomerID:     req.Payment.CustomerID,
		PaymentID:      req.Payment.ID,
		AddressID:      req.Payment.AddressID,
		Lines:          append([]pricing.LineBreakdown(nil), snap.Lines...),
		Subtotal:       snap.Subtotal,
		Discount:       snap.Discount,
		Tax:            snap.Tax,
		Shipping:       snap.Shipping,
		GrandTotal:     snap.GrandTotal,
		CouponID:       snap.CouponID,
		CouponDiscount: snap.CouponDiscount,
		Status:         StatusConfirmed,
		CreatedAt:      at,
	}
	for _, vendorID := range o.VendorIDs() {
		o.Shipments = append(o.Shipments, Shipment{
			ID:       uuid.New().String(),
			OrderID:  o.ID,
			VendorID: vendorID,
			Status:   ShipmentPending,
		})
	}
	return o
}

func shipmentJob(o *Order, sh Shipment) ShipmentJob {
	job := ShipmentJob{
		ShipmentID: sh.ID,
		OrderID:    o.ID,
		VendorID:   sh.VendorID,
	}
	for _, l := range o.Lines {
		if l.VendorID == sh.VendorID {
			job.Lines = append(job.Lines, l)
		}
	}
	return job
}
