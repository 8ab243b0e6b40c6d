package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/order"
	"github.com/tradecart/marketplace/internal/domain/payment"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/vendor"
)

// mapError translates domain errors to HTTP responses. Validation failures
// are 400, missing resources 404, concurrency conflicts 409, and pricing
// integrity violations 500 with their own code so alerting can page on them.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr       *order.InsufficientStockError
		minimumErr     *cart.BelowMinimumError
		unavailableErr *pricing.ProductUnavailableError
	)

	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, r, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrEmptyCart):
		respondError(w, r, http.StatusBadRequest, "empty_cart", "cart has no lines")
	case errors.Is(err, cart.ErrGuestCoupon):
		respondError(w, r, http.StatusBadRequest, "guest_coupon", "coupons require an authenticated customer")
	case errors.As(err, &minimumErr):
		respondError(w, r, http.StatusBadRequest, "below_minimum_quantity", minimumErr.Error())
	case errors.Is(err, order.ErrMissingAddress):
		respondError(w, r, http.StatusBadRequest, "missing_address", "an address is required")
	case errors.Is(err, order.ErrZeroTotal):
		respondError(w, r, http.StatusBadRequest, "zero_total", "order total must be positive")
	case errors.Is(err, payment.ErrMethodDisabled):
		respondError(w, r, http.StatusBadRequest, "payment_method_disabled", "payment method is not available")

	case errors.Is(err, coupon.ErrInvalidCoupon):
		respondError(w, r, http.StatusBadRequest, "invalid_coupon", "coupon is not valid")
	case errors.Is(err, coupon.ErrCouponExpired):
		respondError(w, r, http.StatusBadRequest, "coupon_expired", "coupon is outside its validity window")
	case errors.Is(err, coupon.ErrUsageLimitReached):
		respondError(w, r, http.StatusConflict, "coupon_exhausted", "coupon usage limit reached")
	case errors.Is(err, coupon.ErrAlreadyRedeemed):
		respondError(w, r, http.StatusConflict, "coupon_already_redeemed", "coupon already redeemed by this customer")

	case errors.As(err, &stockErr):
		respondError(w, r, http.StatusConflict, "insufficient_stock", stockErr.Error())
	case errors.As(err, &unavailableErr):
		respondError(w, r, http.StatusConflict, "product_unavailable", unavailableErr.Error())

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, vendor.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, pricing.ErrNegativeTotal):
		zctx.From(r.Context()).Error("pricing integrity violation", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "pricing_integrity", "pricing produced an inconsistent total")

	default:
		zctx.From(r.Context()).Error("unhandled error", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
