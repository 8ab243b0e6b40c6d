package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/pricing"
)

type cartResponse struct {
	ID      string              `json:"id"`
	Lines   []cart.Line         `json:"lines"`
	Coupon  *cart.AppliedCoupon `json:"coupon,omitempty"`
	Pricing *pricing.Snapshot   `json:"pricing"`
	Status  cart.Status         `json:"status"`
	Updated time.Time           `json:"updated_at"`
}

func renderCart(c *cart.Cart) cartResponse {
	return cartResponse{
		ID:      c.ID,
		Lines:   c.Lines,
		Coupon:  c.Coupon,
		Pricing: c.Snapshot,
		Status:  c.Status,
		Updated: c.UpdatedAt,
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type mergeCartRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), buyerFrom(r))
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, renderCart(c))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	c, err := h.carts.AddItem(r.Context(), buyerFrom(r), req.ProductID, req.Quantity)
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, renderCart(c))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.carts.UpdateItem(r.Context(), buyerFrom(r), productID, req.Quantity)
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, renderCart(c))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	c, err := h.carts.RemoveItem(r.Context(), buyerFrom(r), productID)
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, renderCart(c))
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_coupon", "code is required")
		return
	}

	c, err := h.carts.ApplyCoupon(r.Context(), buyerFrom(r), req.Code)
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, renderCart(c))
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveCoupon(r.Context(), buyerFrom(r))
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, renderCart(c))
}

// mergeCart folds an anonymous session cart into the authenticated customer's
// cart after login.
func (h *Handler) mergeCart(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFrom(r)
	if buyer.Guest() {
		respondError(w, r, http.StatusBadRequest, "not_authenticated", "merging requires an authenticated customer")
		return
	}

	var req mergeCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_session_id", "session_id is required")
		return
	}

	c, err := h.carts.Merge(r.Context(), buyer, req.SessionID)
	if err != nil {
		mapError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, renderCart(c))
}
