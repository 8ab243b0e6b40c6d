// Package shipping computes per-vendor shipping charges for cart and order
// lines.
package shipping

import (
	"context"

	"github.com/shopspring/decimal"
)

// Rule is a vendor's shipping configuration: a flat rate per order, optionally
// waived once the vendor's rule-eligible subtotal reaches FreeAbove.
type Rule struct {
	VendorID string
	FlatRate decimal.Decimal
	// FreeAbove is the free-shipping subtotal threshold. Zero or negative
	// means no threshold is configured.
	FreeAbove decimal.Decimal
	Active    bool
}

// Line is the shipping-relevant view of a cart or order line.
type Line struct {
	VendorID string
	// Subtotal is the line's pre-tax amount (post-discount).
	Subtotal decimal.Decimal
	Quantity int
	// FixedShipping is the per-unit fixed shipping cost carried by the
	// product. Positive values bypass the vendor's rule for this line.
	FixedShipping decimal.Decimal
}

// Result is the computed shipping charge with its per-vendor breakdown.
type Result struct {
	Total    decimal.Decimal
	ByVendor map[string]decimal.Decimal
}

// Calculate returns total shipping for the given lines. Each vendor group is
// computed independently: lines with a positive fixed shipping cost are summed
// quantity-weighted, the rest fall under the vendor's rule. A vendor with no
// active rule and no fixed-shipping lines contributes zero.
func Calculate(lines []Line, rules map[string]Rule) Result {
	byVendor := make(map[string]decimal.Decimal)
	vendorOrder := make([]string, 0, len(rules))
	ruleSubtotals := make(map[string]decimal.Decimal)

	for _, l := range lines {
		if _, seen := byVendor[l.VendorID]; !seen {
			byVendor[l.VendorID] = decimal.Zero
			vendorOrder = append(vendorOrder, l.VendorID)
		}
		if l.FixedShipping.IsPositive() {
			charge := l.FixedShipping.Mul(decimal.NewFromInt(int64(l.Quantity)))
			byVendor[l.VendorID] = byVendor[l.VendorID].Add(charge)
			continue
		}
		ruleSubtotals[l.VendorID] = ruleSubtotals[l.VendorID].Add(l.Subtotal)
	}

	total := decimal.Zero
	for _, vendorID := range vendorOrder {
		rule, ok := rules[vendorID]
		if ok && rule.Active {
			sub := ruleSubtotals[vendorID]
			free := rule.FreeAbove.IsPositive() && sub.GreaterThanOrEqual(rule.FreeAbove)
			if !free && hasRuleLines(lines, vendorID) {
				byVendor[vendorID] = byVendor[vendorID].Add(rule.FlatRate)
			}
		}
		byVendor[vendorID] = byVendor[vendorID].Round(2)
		total = total.Add(byVendor[vendorID])
	}

	return Result{Total: total.Round(2), ByVendor: byVendor}
}

func hasRuleLines(lines []Line, vendorID string) bool {
	for _, l := range lines {
		if l.VendorID == vendorID && !l.FixedShipping.IsPositive() {
			return true
		}
	}
	return false
}

// RuleSource batch-loads shipping rules for a set of vendors. Vendors with no
// configured rule are absent from the returned map.
type RuleSource interface {
	ShippingRules(ctx context.Context, vendorIDs []string) (map[string]Rule, error)
}
