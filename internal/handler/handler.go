// Package handler exposes the HTTP surface: cart mutations, checkout,
// settlement callbacks, and the cached product listing.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/order"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/vendor"
)

// Handler wires the domain services to chi routes.
type Handler struct {
	carts    *cart.Service
	checkout *order.Checkout
	orders   order.Repository
	products product.Repository
	vendors  vendor.Repository
}

// New creates a Handler.
func New(carts *cart.Service, checkout *order.Checkout, orders order.Repository, products product.Repository, vendors vendor.Repository) *Handler {
	return &Handler{
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		products: products,
		vendors:  vendors,
	}
}

// Routes mounts every API route on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Post("/items", h.addItem)
			r.Put("/items/{productID}", h.updateItem)
			r.Delete("/items/{productID}", h.removeItem)
			r.Post("/coupon", h.applyCoupon)
			r.Delete("/coupon", h.removeCoupon)
			r.Post("/merge", h.mergeCart)
		})

		r.Post("/orders", h.placeOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/payments/{paymentID}/settle", h.settlePayment)
	})
	return r
}

// buyerFrom assembles the pricing identity from request headers. The customer
// id is set by the authenticating proxy; anonymous traffic carries only a
// session id.
func buyerFrom(r *http.Request) pricing.Buyer {
	return pricing.Buyer{
		CustomerID: r.Header.Get("X-Customer-ID"),
		SessionID:  r.Header.Get("X-Session-ID"),
		Region:     r.Header.Get("X-Region"),
		Segment:    r.Header.Get("X-Customer-Segment"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, errorResponse{Error: message, Code: code})
}
