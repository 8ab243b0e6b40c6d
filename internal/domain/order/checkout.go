package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/payment"
	"github.com/tradecart/marketplace/internal/domain/pricing"
)

// AddressSource resolves a customer's address to the region the tax resolver
// needs. The address book itself lives outside this core.
type AddressSource interface {
	Region(ctx context.Context, customerID, addressID string) (string, error)
}

// CartSource is the slice of the cart service the checkout needs: a repriced
// read for checkout, a raw read for settlement.
type CartSource interface {
	Get(ctx context.Context, buyer pricing.Buyer) (*cart.Cart, error)
}

// CheckoutRequest is the typed input for creating an order.
type CheckoutRequest struct {
	Buyer          pricing.Buyer
	AddressID      string
	Method         payment.Method
	IdempotencyKey string
}

// CheckoutResult is either an immediate order (cash on delivery) or a gateway
// handle the client completes the payment with.
type CheckoutResult struct {
	Order   *Order
	Payment *payment.Payment
	Handle  *payment.GatewayHandle
}

// Checkout orchestrates payment creation and settlement around the Finalizer.
type Checkout struct {
	carts     CartSource
	rawCarts  cart.Repository
	addresses AddressSource
	payments  payment.Repository
	gateway   payment.Gateway
	orders    Repository
	finalizer *Finalizer
	currency  string
	now       func() time.Time
}

// NewCheckout creates a Checkout service.
func NewCheckout(
	carts CartSource,
	rawCarts cart.Repository,
	addresses AddressSource,
	payments payment.Repository,
	gateway payment.Gateway,
	orders Repository,
	finalizer *Finalizer,
	currency string,
) *Checkout {
	return &Checkout{
		carts:     carts,
		rawCarts:  rawCarts,
		addresses: addresses,
		payments:  payments,
		gateway:   gateway,
		orders:    orders,
		finalizer: finalizer,
		currency:  currency,
		now:       time.Now,
	}
}

// PlaceOrder validates the checkout, reprices the cart one final time, and
// creates the payment. COD settles immediately and returns the finalized
// order; gateway methods return a handle and finalize on settlement.
//
// The idempotency key makes client retries safe: a repeated call with the
// same key returns the prior payment's outcome instead of charging twice.
func (c *Checkout) PlaceOrder(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.Method != payment.MethodCOD && req.Method != payment.MethodGateway {
		return nil, payment.ErrMethodDisabled
	}
	if req.AddressID == "" {
		return nil, ErrMissingAddress
	}
	region, err := c.addresses.Region(ctx, req.Buyer.CustomerID, req.AddressID)
	if err != nil {
		return nil, errors.Wrap(ErrMissingAddress, err.Error())
	}
	req.Buyer.Region = region

	if prior, err := c.priorAttempt(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	// Final reprice: the snapshot persisted here is what the finalizer
	// copies, so the charged amount matches what the customer approved.
	crt, err := c.carts.Get(ctx, req.Buyer)
	if err != nil {
		return nil, err
	}
	if len(crt.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}
	if !crt.Snapshot.GrandTotal.IsPositive() {
		return nil, errors.Wrapf(ErrZeroTotal, "cart %s", crt.ID)
	}

	pay := &payment.Payment{
		ID:             uuid.New().String(),
		CustomerID:     req.Buyer.CustomerID,
		AddressID:      req.AddressID,
		Method:         req.Method,
		Status:         payment.StatusPending,
		Amount:         crt.Snapshot.GrandTotal,
		Currency:       c.currency,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      c.now(),
	}
	if err := c.payments.Create(ctx, pay); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	if req.Method == payment.MethodCOD {
		o, err := c.finalizer.Finalize(ctx, FinalizeRequest{
			Payment: pay,
			Cart:    crt,
			Buyer:   req.Buyer,
		})
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Order: o, Payment: pay}, nil
	}

	handle, err := c.gateway.CreateCharge(ctx, pay.Amount, pay.Currency, req.IdempotencyKey)
	if err != nil {
		return nil, errors.Wrap(err, "create gateway charge")
	}
	if err := c.payments.SetGatewayRef(ctx, pay.ID, handle.Reference); err != nil {
		return nil, errors.Wrap(err, "store gateway ref")
	}
	pay.GatewayRef = handle.Reference
	return &CheckoutResult{Payment: pay, Handle: handle}, nil
}

// priorAttempt resolves a repeated idempotency key to the earlier attempt's
// outcome: the finalized order if one exists, otherwise the stored gateway
// handle.
func (c *Checkout) priorAttempt(ctx context.Context, key string) (*CheckoutResult, error) {
	if key == "" {
		return nil, nil
	}
	pay, err := c.payments.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup idempotency key")
	}

	o, err := c.orders.FindByPaymentID(ctx, pay.ID)
	if err == nil {
		return &CheckoutResult{Order: o, Payment: pay}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "lookup prior order")
	}
	return &CheckoutResult{
		Payment: pay,
		Handle:  &payment.GatewayHandle{Reference: pay.GatewayRef},
	}, nil
}

// Settle records a gateway settlement outcome. A paid outcome drives the
// finalizer with the cart's last persisted snapshot; it never reprices.
func (c *Checkout) Settle(ctx context.Context, paymentID string, paid bool) (*Order, error) {
	pay, err := c.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if !paid {
		if err := c.payments.UpdateStatus(ctx, pay.ID, payment.StatusFailed); err != nil {
			return nil, errors.Wrap(err, "mark payment failed")
		}
		return nil, nil
	}

	buyer := pricing.Buyer{CustomerID: pay.CustomerID}
	crt, err := c.rawCarts.FindByOwner(ctx, cart.Owner{CustomerID: pay.CustomerID})
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			// Cart already cleared: a duplicate settlement. The guard
			// inside Finalize handles the common race, but without a cart
			// there is nothing to finalize beyond looking up the order.
			return c.orders.FindByPaymentID(ctx, pay.ID)
		}
		return nil, errors.Wrap(err, "find cart")
	}
	if len(crt.Lines) == 0 {
		// Ordered lines already removed: treat a duplicate settlement as
		// success by returning the existing order.
		if existing, err := c.orders.FindByPaymentID(ctx, pay.ID); err == nil {
			return existing, nil
		}
	}

	return c.finalizer.Finalize(ctx, FinalizeRequest{
		Payment: pay,
		Cart:    crt,
		Buyer:   buyer,
	})
}
