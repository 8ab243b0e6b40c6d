// Package discount holds the flat/percentage discount primitive shared by
// product discounts, campaigns, and coupons.
package discount

import "github.com/shopspring/decimal"

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeNone means no discount is configured.
	TypeNone Type = ""
	// TypeFlat subtracts a fixed monetary amount.
	TypeFlat Type = "flat"
	// TypePercentage subtracts a percentage of the amount.
	TypePercentage Type = "percentage"
)

var hundred = decimal.NewFromInt(100)

// Amount returns the discount value for the given amount, floored at zero and
// rounded to two decimal places.
func Amount(amount decimal.Decimal, typ Type, value decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch typ {
	case TypeFlat:
		d = decimal.Min(value, amount)
	case TypePercentage:
		d = amount.Mul(value).Div(hundred)
	default:
		return decimal.Zero
	}
	return FloorAtZero(d).Round(2)
}

// Apply returns amount minus the discount, floored at zero.
func Apply(amount decimal.Decimal, typ Type, value decimal.Decimal) decimal.Decimal {
	return FloorAtZero(amount.Sub(Amount(amount, typ, value)))
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
