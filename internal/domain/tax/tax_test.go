package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tradecart/marketplace/internal/domain/product"
)

func TestResolve_NoSettingsUsesDefaultRate(t *testing.T) {
	got := Resolve(nil, "KA")

	assert.True(t, DefaultRate.Equal(got.Rate))
	assert.False(t, got.TaxShipping)
}

func TestResolve_VendorDefault(t *testing.T) {
	s := &Settings{
		VendorID:    "vendor-1",
		DefaultRate: decimal.RequireFromString("12"),
		TaxShipping: true,
	}

	got := Resolve(s, "MH")

	assert.True(t, decimal.RequireFromString("12").Equal(got.Rate))
	assert.True(t, got.TaxShipping)
}

func TestResolve_RegionOverrideWins(t *testing.T) {
	s := &Settings{
		VendorID:    "vendor-1",
		DefaultRate: decimal.RequireFromString("18"),
		Overrides: []RegionRate{
			{Region: "KA", Rate: decimal.RequireFromString("12")},
			{Region: "TN", Rate: decimal.RequireFromString("14")},
		},
	}

	got := Resolve(s, "KA")
	assert.True(t, decimal.RequireFromString("12").Equal(got.Rate))
}

func TestResolve_OverrideMatchIsCaseInsensitive(t *testing.T) {
	s := &Settings{
		VendorID:    "vendor-1",
		DefaultRate: decimal.RequireFromString("18"),
		Overrides:   []RegionRate{{Region: "ka", Rate: decimal.RequireFromString("12")}},
	}

	got := Resolve(s, "  KA ")
	assert.True(t, decimal.RequireFromString("12").Equal(got.Rate))
}

func TestResolve_EmptyRegionSkipsOverrides(t *testing.T) {
	s := &Settings{
		VendorID:    "vendor-1",
		DefaultRate: decimal.RequireFromString("18"),
		Overrides:   []RegionRate{{Region: "", Rate: decimal.RequireFromString("5")}},
	}

	got := Resolve(s, "")
	assert.True(t, decimal.RequireFromString("18").Equal(got.Rate))
}

func TestCalculate_Exclusive(t *testing.T) {
	got := Calculate(decimal.RequireFromString("900"), decimal.RequireFromString("18"), product.TaxExclusive)

	assert.True(t, decimal.RequireFromString("900.00").Equal(got.Base))
	assert.True(t, decimal.RequireFromString("162.00").Equal(got.Tax))
	assert.True(t, decimal.RequireFromString("1062.00").Equal(got.Total))
}

func TestCalculate_InclusiveBacksBaseOut(t *testing.T) {
	// 1198 at 12% inclusive: base = 1198/1.12 = 1069.642857 -> 1069.64.
	got := Calculate(decimal.RequireFromString("1198"), decimal.RequireFromString("12"), product.TaxInclusive)

	assert.True(t, decimal.RequireFromString("1069.64").Equal(got.Base))
	assert.True(t, decimal.RequireFromString("128.36").Equal(got.Tax))
	assert.True(t, decimal.RequireFromString("1198.00").Equal(got.Total))
}

func TestCalculate_InclusiveBasePlusTaxEqualsTotal(t *testing.T) {
	got := Calculate(decimal.RequireFromString("599"), decimal.RequireFromString("12"), product.TaxInclusive)

	assert.True(t, got.Base.Add(got.Tax).Equal(got.Total))
}

func TestCalculate_ZeroRate(t *testing.T) {
	got := Calculate(decimal.RequireFromString("500"), decimal.Zero, product.TaxExclusive)

	assert.True(t, got.Tax.IsZero())
	assert.True(t, decimal.RequireFromString("500.00").Equal(got.Total))
}
