package coupon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/discount"
)

// LineAmount is one cart line's pre-tax amount, as seen by the allocator.
type LineAmount struct {
	ProductID string
	VendorID  string
	Amount    decimal.Decimal
}

// Allocation is the result of spreading a coupon across cart lines. Shares is
// aligned with the input lines; ineligible lines hold zero. When Cleared is
// true the coupon is no longer valid and must be removed from the cart.
type Allocation struct {
	Total   decimal.Decimal
	Shares  []decimal.Decimal
	Cleared bool
	Reason  error
}

// Allocate distributes the coupon's discount proportionally across the lines
// belonging to the coupon's vendor. The total discount is a flat amount capped
// at the eligible subtotal, or a percentage of it. Every eligible line gets
// round(lineAmount/eligibleSubtotal*total) except the last, which takes the
// remainder so the shares sum exactly to the total despite rounding.
//
// An invalid, expired, exhausted, or vendor-mismatched coupon never fails the
// pricing pass; it yields a zero allocation with Cleared set.
func Allocate(c *Coupon, lines []LineAmount, at time.Time) Allocation {
	shares := make([]decimal.Decimal, len(lines))
	for i := range shares {
		shares[i] = decimal.Zero
	}

	if err := c.Validate(at); err != nil {
		return Allocation{Total: decimal.Zero, Shares: shares, Cleared: true, Reason: err}
	}

	eligible := make([]int, 0, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		if l.VendorID != c.VendorID || !l.Amount.IsPositive() {
			continue
		}
		eligible = append(eligible, i)
		subtotal = subtotal.Add(l.Amount)
	}
	if len(eligible) == 0 {
		return Allocation{Total: decimal.Zero, Shares: shares, Cleared: true, Reason: ErrInvalidCoupon}
	}

	total := discount.Amount(subtotal, c.DiscountType, c.DiscountValue)
	if total.IsZero() {
		return Allocation{Total: decimal.Zero, Shares: shares}
	}

	allocated := decimal.Zero
	for n, i := range eligible {
		if n == len(eligible)-1 {
			shares[i] = total.Sub(allocated)
			break
		}
		shares[i] = lines[i].Amount.Div(subtotal).Mul(total).Round(2)
		allocated = allocated.Add(shares[i])
	}

	return Allocation{Total: total, Shares: shares}
}
