package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/campaign"
)

// LineBreakdown is the fully itemized monetary state of one line. Every
// discount layer is preserved individually so orders stay auditable.
type LineBreakdown struct {
	ProductID   string `json:"product_id"`
	VendorID    string `json:"vendor_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`

	// UnitPrice is the live catalog price at computation time. For frozen
	// upsell lines it is the frozen price.
	UnitPrice decimal.Decimal `json:"unit_price"`
	// ProductDiscount is the per-unit discount from the product's own
	// flat/percentage discount.
	ProductDiscount decimal.Decimal `json:"product_discount"`
	// CampaignKind and CampaignID identify the winning campaign, if any.
	CampaignKind campaign.Kind `json:"campaign_kind,omitempty"`
	CampaignID   string        `json:"campaign_id,omitempty"`
	// CampaignDiscount is the per-unit discount from the winning campaign.
	CampaignDiscount decimal.Decimal `json:"campaign_discount"`
	// CouponShare is this line's slice of the cart-level coupon discount
	// (a line amount, not per-unit).
	CouponShare decimal.Decimal `json:"coupon_share"`

	// Subtotal is the line's pre-tax amount after all discount layers.
	Subtotal decimal.Decimal `json:"subtotal"`

	TaxRate   decimal.Decimal `json:"tax_rate"`
	TaxAmount decimal.Decimal `json:"tax_amount"`

	// Total is the tax-inclusive line amount.
	Total decimal.Decimal `json:"total"`
}

// Snapshot is the fully recomputed, audit-complete monetary state of a cart.
// It is derived data: every mutation or read recomputes it from live product,
// campaign, coupon, tax, and shipping data.
type Snapshot struct {
	Lines []LineBreakdown `json:"lines"`

	// Subtotal is the sum of line totals (post-discount, post-tax).
	Subtotal decimal.Decimal `json:"subtotal"`
	// Discount is the total savings across all layers, for display.
	Discount decimal.Decimal `json:"discount"`
	// Tax is the sum of line tax amounts plus any shipping tax.
	Tax decimal.Decimal `json:"tax"`

	Shipping         decimal.Decimal            `json:"shipping"`
	ShippingByVendor map[string]decimal.Decimal `json:"shipping_by_vendor,omitempty"`

	CouponID       string          `json:"coupon_id,omitempty"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	// CouponCleared is set when the applied coupon failed re-validation and
	// must be removed from the cart.
	CouponCleared bool `json:"-"`

	GrandTotal decimal.Decimal `json:"grand_total"`
}
