package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/product"
)

type productResponse struct {
	ID              string          `json:"id"`
	VendorID        string          `json:"vendor_id"`
	VendorName      string          `json:"vendor_name,omitempty"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DiscountedPrice decimal.Decimal `json:"discounted_price"`
	TaxMode         product.TaxMode `json:"tax_mode"`
	MinQuantity     int             `json:"min_quantity,omitempty"`
	InStock         bool            `json:"in_stock"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		mapError(w, r, err)
		return
	}

	vendorIDs := make([]string, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if _, ok := seen[p.VendorID]; !ok {
			seen[p.VendorID] = struct{}{}
			vendorIDs = append(vendorIDs, p.VendorID)
		}
	}
	vendorName := make(map[string]string, len(vendorIDs))
	if len(vendorIDs) > 0 {
		// Vendor names are presentation only; a lookup failure degrades the
		// listing instead of failing it.
		if vendors, err := h.vendors.GetByIDs(r.Context(), vendorIDs); err == nil {
			for _, v := range vendors {
				vendorName[v.ID] = v.Name
			}
		}
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		if !p.Active {
			continue
		}
		out = append(out, productResponse{
			ID:              p.ID,
			VendorID:        p.VendorID,
			VendorName:      vendorName[p.VendorID],
			Name:            p.Name,
			Price:           p.Price,
			DiscountedPrice: p.DiscountedPrice(),
			TaxMode:         p.TaxMode,
			MinQuantity:     p.MinQuantity,
			InStock:         p.Stock > 0,
		})
	}
	respondJSON(w, r, http.StatusOK, out)
}
