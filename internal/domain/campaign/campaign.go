// Package campaign models flash sales and pricing rules and the best-of
// selection between them. Campaigns never stack: when both kinds are eligible
// for a line, the one yielding the lower final price wins.
package campaign

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/discount"
)

// Kind identifies which campaign mechanism produced a discount.
type Kind string

const (
	// KindNone means no campaign applied.
	KindNone Kind = ""
	// KindFlashSale identifies a time-boxed flash sale.
	KindFlashSale Kind = "flash_sale"
	// KindPricingRule identifies a customer-segment pricing rule.
	KindPricingRule Kind = "pricing_rule"
)

// FlashSale is a time-boxed discount on a set of one vendor's products.
type FlashSale struct {
	ID            string
	VendorID      string
	ProductIDs    []string
	DiscountType  discount.Type
	DiscountValue decimal.Decimal
	StartsAt      time.Time
	EndsAt        time.Time
	Active        bool
}

// EligibleFor reports whether the sale covers the given product at the given
// instant. The sale must belong to the same vendor as the line.
func (f FlashSale) EligibleFor(productID, vendorID string, at time.Time) bool {
	if !f.Active || f.VendorID != vendorID {
		return false
	}
	if at.Before(f.StartsAt) || at.After(f.EndsAt) {
		return false
	}
	return slices.Contains(f.ProductIDs, productID)
}

// PricingRule is a segment-boxed discount on a set of one vendor's products.
// An empty segment list applies to all customers.
type PricingRule struct {
	ID            string
	VendorID      string
	ProductIDs    []string
	Segments      []string
	DiscountType  discount.Type
	DiscountValue decimal.Decimal
	StartsAt      *time.Time
	EndsAt        *time.Time
	Active        bool
}

// EligibleFor reports whether the rule covers the given product for a customer
// in the given segment at the given instant.
func (r PricingRule) EligibleFor(productID, vendorID, segment string, at time.Time) bool {
	if !r.Active || r.VendorID != vendorID {
		return false
	}
	if r.StartsAt != nil && at.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && at.After(*r.EndsAt) {
		return false
	}
	if len(r.Segments) > 0 && !slices.Contains(r.Segments, segment) {
		return false
	}
	return slices.Contains(r.ProductIDs, productID)
}

// Set holds the active campaigns loaded for one pricing pass.
type Set struct {
	FlashSales   []FlashSale
	PricingRules []PricingRule
}

// Applied describes the campaign chosen for a line, if any.
type Applied struct {
	Kind       Kind
	CampaignID string
	// Discount is the per-unit discount amount relative to the price the
	// selection ran against.
	Discount decimal.Decimal
}

// BestFor picks the campaign yielding the lowest final unit price for the
// given product. Both candidate prices are computed independently against the
// same base price; the lower one wins, and a tie goes to the flash sale. When
// neither kind is eligible the zero Applied is returned and the price stands.
func (s Set) BestFor(productID, vendorID, segment string, base decimal.Decimal, at time.Time) Applied {
	best := Applied{}
	bestPrice := base

	for _, f := range s.FlashSales {
		if !f.EligibleFor(productID, vendorID, at) {
			continue
		}
		price := discount.Apply(base, f.DiscountType, f.DiscountValue)
		if price.LessThan(bestPrice) || (best.Kind == KindNone && price.Equal(bestPrice) && price.LessThan(base)) {
			bestPrice = price
			best = Applied{Kind: KindFlashSale, CampaignID: f.ID, Discount: base.Sub(price)}
		}
	}

	for _, r := range s.PricingRules {
		if !r.EligibleFor(productID, vendorID, segment, at) {
			continue
		}
		price := discount.Apply(base, r.DiscountType, r.DiscountValue)
		if price.LessThan(bestPrice) {
			bestPrice = price
			best = Applied{Kind: KindPricingRule, CampaignID: r.ID, Discount: base.Sub(price)}
		}
	}

	return best
}

// Repository batch-loads the campaigns currently active for a set of vendors.
type Repository interface {
	ActiveForVendors(ctx context.Context, vendorIDs []string, at time.Time) (Set, error)
}
