package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/order"
	"github.com/tradecart/marketplace/internal/domain/payment"
	"github.com/tradecart/marketplace/internal/domain/pricing"
)

type placeOrderRequest struct {
	AddressID     string `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
	SessionID     string `json:"session_id,omitempty"`
}

type shipmentResponse struct {
	ID         string `json:"id"`
	VendorID   string `json:"vendor_id"`
	Status     string `json:"status"`
	TrackingID string `json:"tracking_id,omitempty"`
}

type orderResponse struct {
	ID             string                  `json:"id"`
	PaymentID      string                  `json:"payment_id"`
	AddressID      string                  `json:"address_id"`
	Lines          []pricing.LineBreakdown `json:"lines"`
	Subtotal       decimal.Decimal         `json:"subtotal"`
	Discount       decimal.Decimal         `json:"discount"`
	Tax            decimal.Decimal         `json:"tax"`
	Shipping       decimal.Decimal         `json:"shipping"`
	GrandTotal     decimal.Decimal         `json:"grand_total"`
	CouponID       string                  `json:"coupon_id,omitempty"`
	CouponDiscount decimal.Decimal         `json:"coupon_discount"`
	Status         order.Status            `json:"status"`
	Shipments      []shipmentResponse      `json:"shipments,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

type checkoutResponse struct {
	Order   *orderResponse `json:"order,omitempty"`
	Payment paymentSummary `json:"payment"`
	// Gateway fields are present only for gateway checkouts awaiting
	// settlement.
	GatewayRef string `json:"gateway_ref,omitempty"`
	ClientKey  string `json:"client_key,omitempty"`
}

type paymentSummary struct {
	ID     string          `json:"id"`
	Method payment.Method  `json:"method"`
	Status payment.Status  `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

func renderOrder(o *order.Order) *orderResponse {
	resp := &orderResponse{
		ID:             o.ID,
		PaymentID:      o.PaymentID,
		AddressID:      o.AddressID,
		Lines:          o.Lines,
		Subtotal:       o.Subtotal,
		Discount:       o.Discount,
		Tax:            o.Tax,
		Shipping:       o.Shipping,
		GrandTotal:     o.GrandTotal,
		CouponID:       o.CouponID,
		CouponDiscount: o.CouponDiscount,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
	}
	for _, sh := range o.Shipments {
		resp.Shipments = append(resp.Shipments, shipmentResponse{
			ID:         sh.ID,
			VendorID:   sh.VendorID,
			Status:     string(sh.Status),
			TrackingID: sh.TrackingID,
		})
	}
	return resp
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFrom(r)
	if buyer.CustomerID == "" {
		respondError(w, r, http.StatusUnauthorized, "not_authenticated", "checkout requires an authenticated customer")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID != "" {
		buyer.SessionID = req.SessionID
	}

	result, err := h.checkout.PlaceOrder(r.Context(), order.CheckoutRequest{
		Buyer:          buyer,
		AddressID:      req.AddressID,
		Method:         payment.Method(req.PaymentMethod),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		mapError(w, r, err)
		return
	}

	resp := checkoutResponse{
		Payment: paymentSummary{
			ID:     result.Payment.ID,
			Method: result.Payment.Method,
			Status: result.Payment.Status,
			Amount: result.Payment.Amount,
		},
	}
	status := http.StatusCreated
	if result.Order != nil {
		resp.Order = renderOrder(result.Order)
	}
	if result.Handle != nil {
		resp.GatewayRef = result.Handle.Reference
		resp.ClientKey = result.Handle.ClientKey
		status = http.StatusAccepted
	}
	respondJSON(w, r, status, resp)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFrom(r)
	if buyer.CustomerID == "" {
		respondError(w, r, http.StatusUnauthorized, "not_authenticated", "order history requires an authenticated customer")
		return
	}

	list, err := h.orders.ListByCustomer(r.Context(), buyer.CustomerID)
	if err != nil {
		mapError(w, r, err)
		return
	}
	out := make([]*orderResponse, len(list))
	for i := range list {
		out[i] = renderOrder(&list[i])
	}
	respondJSON(w, r, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFrom(r)
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		mapError(w, r, err)
		return
	}
	if o.CustomerID != buyer.CustomerID {
		respondError(w, r, http.StatusNotFound, "not_found", "order not found")
		return
	}
	respondJSON(w, r, http.StatusOK, renderOrder(o))
}

type settleRequest struct {
	Paid bool `json:"paid"`
}

// settlePayment is the gateway callback. A paid settlement drives the
// finalizer; a failed one marks the payment and leaves the cart untouched.
func (h *Handler) settlePayment(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	o, err := h.checkout.Settle(r.Context(), chi.URLParam(r, "paymentID"), req.Paid)
	if err != nil {
		mapError(w, r, err)
		return
	}
	if o == nil {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "failed"})
		return
	}
	respondJSON(w, r, http.StatusOK, renderOrder(o))
}
