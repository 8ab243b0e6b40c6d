// Package pricing recomputes a cart's monetary state. The engine never trusts
// previously cached discount or coupon values: every pass batch-loads live
// product, campaign, coupon, tax, and shipping data up front and derives the
// snapshot from scratch.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/campaign"
	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/discount"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/shipping"
	"github.com/tradecart/marketplace/internal/domain/tax"
)

// ErrNegativeTotal signals a computation-integrity failure: discounts are
// floored at zero per line, so a negative grand total means a bug, not a
// generous coupon. It is never clamped away.
var ErrNegativeTotal = errors.New("computed grand total is negative")

// ProductUnavailableError indicates a cart line references a product that is
// missing or inactive.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// Buyer identifies the cart owner for a pricing pass. CustomerID and
// SessionID are mutually exclusive; a session-only buyer is a guest.
type Buyer struct {
	CustomerID string
	SessionID  string
	Region     string
	Segment    string
}

// Guest reports whether the buyer has no customer identity. Guest carts skip
// campaign, coupon, and tax resolution entirely: those stages need a known
// customer identity and region.
func (b Buyer) Guest() bool { return b.CustomerID == "" }

// Line is the pricing engine's view of one cart line.
type Line struct {
	ProductID string
	Quantity  int
	// FrozenPrice is set for upsell/cross-sell lines whose price was frozen
	// at add-to-cart time. Frozen lines skip product and campaign discounts.
	FrozenPrice *decimal.Decimal
}

// Request is the input to one pricing pass.
type Request struct {
	Lines    []Line
	CouponID string
	Buyer    Buyer
}

// Engine orchestrates per-line discount resolution, coupon allocation, tax,
// and shipping into a priced snapshot.
type Engine struct {
	products  product.Repository
	campaigns campaign.Repository
	coupons   coupon.Repository
	taxes     tax.SettingsSource
	rules     shipping.RuleSource
	now       func() time.Time
}

// NewEngine creates a pricing Engine with the required data sources.
func NewEngine(
	products product.Repository,
	campaigns campaign.Repository,
	coupons coupon.Repository,
	taxes tax.SettingsSource,
	rules shipping.RuleSource,
) *Engine {
	return &Engine{
		products:  products,
		campaigns: campaigns,
		coupons:   coupons,
		taxes:     taxes,
		rules:     rules,
		now:       time.Now,
	}
}

// Price produces a fully recomputed snapshot for the given lines and buyer.
func (e *Engine) Price(ctx context.Context, req Request) (*Snapshot, error) {
	if len(req.Lines) == 0 {
		return &Snapshot{
			Lines:            []LineBreakdown{},
			ShippingByVendor: map[string]decimal.Decimal{},
		}, nil
	}

	products, err := e.loadProducts(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	vendorIDs := distinctVendors(req.Lines, products)
	rules, err := e.rules.ShippingRules(ctx, vendorIDs)
	if err != nil {
		return nil, errors.Wrap(err, "load shipping rules")
	}

	if req.Buyer.Guest() {
		return e.priceGuest(req, products, rules)
	}

	now := e.now()
	campaigns, err := e.campaigns.ActiveForVendors(ctx, vendorIDs, now)
	if err != nil {
		return nil, errors.Wrap(err, "load campaigns")
	}
	settings, err := e.taxes.TaxSettings(ctx, vendorIDs)
	if err != nil {
		return nil, errors.Wrap(err, "load tax settings")
	}

	snap := &Snapshot{Lines: make([]LineBreakdown, len(req.Lines))}

	// Discount stages: product discount, then best-of campaign.
	amounts := make([]coupon.LineAmount, len(req.Lines))
	for i, l := range req.Lines {
		p := products[l.ProductID]
		b := priceLine(l, p, campaigns, req.Buyer.Segment, now)
		snap.Lines[i] = b
		amounts[i] = coupon.LineAmount{
			ProductID: p.ID,
			VendorID:  p.VendorID,
			Amount:    b.Subtotal,
		}
	}

	// Coupon stage: re-validate against live data and spread across the
	// eligible vendor's lines.
	if req.CouponID != "" {
		if err := e.allocateCoupon(ctx, req.CouponID, amounts, snap, now); err != nil {
			return nil, err
		}
	}

	// Tax stage: computed on the post-discount, post-coupon line amount.
	shipLines := make([]shipping.Line, len(req.Lines))
	for i := range snap.Lines {
		b := &snap.Lines[i]
		p := products[b.ProductID]

		afterCoupon := discount.FloorAtZero(b.Subtotal.Sub(b.CouponShare))
		resolved := resolveFor(settings, p.VendorID, req.Buyer.Region)
		calc := tax.Calculate(afterCoupon, resolved.Rate, p.TaxMode)

		b.Subtotal = calc.Base
		b.TaxRate = resolved.Rate
		b.TaxAmount = calc.Tax
		b.Total = calc.Total

		snap.Subtotal = snap.Subtotal.Add(calc.Total)
		snap.Tax = snap.Tax.Add(calc.Tax)
		snap.Discount = snap.Discount.Add(lineSavings(*b))

		shipLines[i] = shipping.Line{
			VendorID:      p.VendorID,
			Subtotal:      calc.Base,
			Quantity:      b.Quantity,
			FixedShipping: p.FixedShipping,
		}
	}

	// Shipping stage, grouped by vendor. Vendors whose tax settings tax
	// shipping get an additional exclusive-mode tax on their charge.
	ship := shipping.Calculate(shipLines, rules)
	snap.Shipping = ship.Total
	snap.ShippingByVendor = ship.ByVendor
	for vendorID, charge := range ship.ByVendor {
		resolved := resolveFor(settings, vendorID, req.Buyer.Region)
		if resolved.TaxShipping && charge.IsPositive() {
			shipTax := tax.Calculate(charge, resolved.Rate, product.TaxExclusive).Tax
			snap.Tax = snap.Tax.Add(shipTax)
			snap.Shipping = snap.Shipping.Add(shipTax)
		}
	}

	snap.GrandTotal = snap.Subtotal.Add(snap.Shipping).Round(2)
	if snap.GrandTotal.IsNegative() {
		return nil, errors.Wrapf(ErrNegativeTotal, "subtotal %s shipping %s", snap.Subtotal, snap.Shipping)
	}
	return snap, nil
}

// priceLine runs the per-line discount stages: frozen upsell price, or
// product discount followed by best-of campaign selection.
func priceLine(l Line, p *product.Product, campaigns campaign.Set, segment string, now time.Time) LineBreakdown {
	qty := decimal.NewFromInt(int64(l.Quantity))
	b := LineBreakdown{
		ProductID:   p.ID,
		VendorID:    p.VendorID,
		ProductName: p.Name,
		Quantity:    l.Quantity,
	}

	if l.FrozenPrice != nil {
		// Upsell offers are not re-discounted.
		b.UnitPrice = *l.FrozenPrice
		b.Subtotal = l.FrozenPrice.Mul(qty).Round(2)
		return b
	}

	b.UnitPrice = p.Price
	afterProduct := p.DiscountedPrice()
	b.ProductDiscount = p.Price.Sub(afterProduct)

	applied := campaigns.BestFor(p.ID, p.VendorID, segment, afterProduct, now)
	b.CampaignKind = applied.Kind
	b.CampaignID = applied.CampaignID
	b.CampaignDiscount = applied.Discount

	unit := discount.FloorAtZero(afterProduct.Sub(applied.Discount))
	b.Subtotal = unit.Mul(qty).Round(2)
	return b
}

// allocateCoupon re-fetches the coupon and distributes its value. A coupon
// that fails re-validation clears itself from the snapshot instead of failing
// the pass.
func (e *Engine) allocateCoupon(ctx context.Context, couponID string, amounts []coupon.LineAmount, snap *Snapshot, now time.Time) error {
	c, err := e.coupons.GetByID(ctx, couponID)
	if err != nil && !errors.Is(err, coupon.ErrInvalidCoupon) {
		return errors.Wrap(err, "load coupon")
	}

	alloc := coupon.Allocate(c, amounts, now)
	if alloc.Cleared {
		snap.CouponCleared = true
		return nil
	}

	snap.CouponID = c.ID
	snap.CouponCode = c.Code
	snap.CouponDiscount = alloc.Total
	for i := range snap.Lines {
		snap.Lines[i].CouponShare = alloc.Shares[i]
	}
	return nil
}

// priceGuest sums live list prices plus shipping. Campaign, coupon, and tax
// resolution require a known customer identity and region, so guest carts
// skip those stages entirely.
func (e *Engine) priceGuest(req Request, products map[string]*product.Product, rules map[string]shipping.Rule) (*Snapshot, error) {
	snap := &Snapshot{Lines: make([]LineBreakdown, len(req.Lines))}
	shipLines := make([]shipping.Line, len(req.Lines))

	for i, l := range req.Lines {
		p := products[l.ProductID]
		qty := decimal.NewFromInt(int64(l.Quantity))
		unit := p.Price
		if l.FrozenPrice != nil {
			unit = *l.FrozenPrice
		}
		lineTotal := unit.Mul(qty).Round(2)

		snap.Lines[i] = LineBreakdown{
			ProductID:   p.ID,
			VendorID:    p.VendorID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   unit,
			Subtotal:    lineTotal,
			Total:       lineTotal,
		}
		snap.Subtotal = snap.Subtotal.Add(lineTotal)
		shipLines[i] = shipping.Line{
			VendorID:      p.VendorID,
			Subtotal:      lineTotal,
			Quantity:      l.Quantity,
			FixedShipping: p.FixedShipping,
		}
	}

	ship := shipping.Calculate(shipLines, rules)
	snap.Shipping = ship.Total
	snap.ShippingByVendor = ship.ByVendor
	snap.GrandTotal = snap.Subtotal.Add(snap.Shipping).Round(2)
	if snap.GrandTotal.IsNegative() {
		return nil, errors.Wrapf(ErrNegativeTotal, "guest subtotal %s shipping %s", snap.Subtotal, snap.Shipping)
	}
	return snap, nil
}

// loadProducts batch-fetches every product referenced by the lines in a
// single query and verifies each one exists and is active.
func (e *Engine) loadProducts(ctx context.Context, lines []Line) (map[string]*product.Product, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}

	fetched, err := e.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.Active || p.VendorID == "" {
			return nil, &ProductUnavailableError{ProductID: l.ProductID}
		}
	}
	return byID, nil
}

func distinctVendors(lines []Line, products map[string]*product.Product) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		v := products[l.ProductID].VendorID
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func resolveFor(settings map[string]tax.Settings, vendorID, region string) tax.Resolved {
	if s, ok := settings[vendorID]; ok {
		return tax.Resolve(&s, region)
	}
	return tax.Resolve(nil, region)
}

func lineSavings(b LineBreakdown) decimal.Decimal {
	qty := decimal.NewFromInt(int64(b.Quantity))
	return b.ProductDiscount.Mul(qty).
		Add(b.CampaignDiscount.Mul(qty)).
		Add(b.CouponShare).
		Round(2)
}
