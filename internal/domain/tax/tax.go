// Package tax resolves per-vendor tax rates and computes tax amounts.
package tax

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/product"
)

// DefaultRate applies when a vendor has no tax settings configured.
var DefaultRate = decimal.NewFromInt(18)

var hundred = decimal.NewFromInt(100)

// RegionRate overrides the vendor's default rate for one customer region.
type RegionRate struct {
	Region string          `json:"region"`
	Rate   decimal.Decimal `json:"rate"`
}

// Settings holds one vendor's tax configuration.
type Settings struct {
	VendorID    string
	DefaultRate decimal.Decimal
	Overrides   []RegionRate
	// TaxShipping controls whether the vendor's shipping charge is taxed.
	TaxShipping bool
}

// Resolved is the outcome of a (vendor, region) lookup.
type Resolved struct {
	Rate        decimal.Decimal
	TaxShipping bool
}

// Resolve returns the tax rate for a vendor and customer region. A configured
// regional override (case-insensitive, trimmed match) wins over the vendor's
// default rate; absent any settings the hard default applies.
func Resolve(s *Settings, region string) Resolved {
	if s == nil {
		return Resolved{Rate: DefaultRate}
	}
	want := strings.ToLower(strings.TrimSpace(region))
	if want != "" {
		for _, o := range s.Overrides {
			if strings.ToLower(strings.TrimSpace(o.Region)) == want {
				return Resolved{Rate: o.Rate, TaxShipping: s.TaxShipping}
			}
		}
	}
	return Resolved{Rate: s.DefaultRate, TaxShipping: s.TaxShipping}
}

// Result holds the outcome of a tax calculation. Base is the pre-tax amount,
// Tax the tax portion, Total the tax-inclusive amount. All values are rounded
// to two decimal places at the point of computation.
type Result struct {
	Base  decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// Calculate computes tax for the given amount and rate.
//
// Exclusive mode treats amount as pre-tax: tax is added on top. Inclusive
// mode treats amount as tax-included: the base is backed out of it.
func Calculate(amount, rate decimal.Decimal, mode product.TaxMode) Result {
	switch mode {
	case product.TaxInclusive:
		base := amount.Div(decimal.NewFromInt(1).Add(rate.Div(hundred))).Round(2)
		return Result{
			Base:  base,
			Tax:   amount.Sub(base).Round(2),
			Total: amount.Round(2),
		}
	default:
		t := amount.Mul(rate).Div(hundred).Round(2)
		return Result{
			Base:  amount.Round(2),
			Tax:   t,
			Total: amount.Add(t).Round(2),
		}
	}
}

// SettingsSource batch-loads tax settings for a set of vendors. Vendors with
// no configured settings are absent from the returned map.
type SettingsSource interface {
	TaxSettings(ctx context.Context, vendorIDs []string) (map[string]Settings, error)
}
