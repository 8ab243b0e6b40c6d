package campaign

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tradecart/marketplace/internal/domain/discount"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func activeSale(id string, value string, productIDs ...string) FlashSale {
	return FlashSale{
		ID:            id,
		VendorID:      "v1",
		ProductIDs:    productIDs,
		DiscountType:  discount.TypePercentage,
		DiscountValue: d(value),
		StartsAt:      now.Add(-time.Hour),
		EndsAt:        now.Add(time.Hour),
		Active:        true,
	}
}

func activeRule(id string, value string, segments []string, productIDs ...string) PricingRule {
	return PricingRule{
		ID:            id,
		VendorID:      "v1",
		ProductIDs:    productIDs,
		Segments:      segments,
		DiscountType:  discount.TypePercentage,
		DiscountValue: d(value),
		Active:        true,
	}
}

func TestFlashSaleEligibleFor(t *testing.T) {
	f := activeSale("fs1", "25", "p1")

	assert.True(t, f.EligibleFor("p1", "v1", now))
	assert.False(t, f.EligibleFor("p2", "v1", now))
	assert.False(t, f.EligibleFor("p1", "v2", now))
	assert.False(t, f.EligibleFor("p1", "v1", now.Add(2*time.Hour)))
	assert.False(t, f.EligibleFor("p1", "v1", now.Add(-2*time.Hour)))

	f.Active = false
	assert.False(t, f.EligibleFor("p1", "v1", now))
}

func TestPricingRuleEligibleFor(t *testing.T) {
	r := activeRule("pr1", "15", []string{"premium"}, "p1")

	assert.True(t, r.EligibleFor("p1", "v1", "premium", now))
	assert.False(t, r.EligibleFor("p1", "v1", "regular", now))
	assert.False(t, r.EligibleFor("p1", "v1", "", now))
	assert.False(t, r.EligibleFor("p2", "v1", "premium", now))
}

func TestPricingRuleEligibleFor_EmptySegmentsMatchesAll(t *testing.T) {
	r := activeRule("pr1", "15", nil, "p1")

	assert.True(t, r.EligibleFor("p1", "v1", "", now))
	assert.True(t, r.EligibleFor("p1", "v1", "anything", now))
}

func TestPricingRuleEligibleFor_Window(t *testing.T) {
	start := now.Add(time.Hour)
	r := activeRule("pr1", "15", nil, "p1")
	r.StartsAt = &start

	assert.False(t, r.EligibleFor("p1", "v1", "", now))

	end := now.Add(-time.Hour)
	r.StartsAt = nil
	r.EndsAt = &end
	assert.False(t, r.EligibleFor("p1", "v1", "", now))
}

func TestBestFor_NoCampaigns(t *testing.T) {
	got := Set{}.BestFor("p1", "v1", "", d("1000"), now)

	assert.Equal(t, KindNone, got.Kind)
	assert.True(t, got.Discount.IsZero())
}

func TestBestFor_FlashSaleOnly(t *testing.T) {
	s := Set{FlashSales: []FlashSale{activeSale("fs1", "25", "p1")}}

	got := s.BestFor("p1", "v1", "", d("1000"), now)

	assert.Equal(t, KindFlashSale, got.Kind)
	assert.Equal(t, "fs1", got.CampaignID)
	assert.True(t, d("250.00").Equal(got.Discount))
}

func TestBestFor_DeeperDiscountWins(t *testing.T) {
	s := Set{
		FlashSales:   []FlashSale{activeSale("fs1", "10", "p1")},
		PricingRules: []PricingRule{activeRule("pr1", "15", nil, "p1")},
	}

	got := s.BestFor("p1", "v1", "premium", d("1000"), now)

	assert.Equal(t, KindPricingRule, got.Kind)
	assert.Equal(t, "pr1", got.CampaignID)
	assert.True(t, d("150.00").Equal(got.Discount))
}

func TestBestFor_TieGoesToFlashSale(t *testing.T) {
	s := Set{
		FlashSales:   []FlashSale{activeSale("fs1", "20", "p1")},
		PricingRules: []PricingRule{activeRule("pr1", "20", nil, "p1")},
	}

	got := s.BestFor("p1", "v1", "", d("1000"), now)

	assert.Equal(t, KindFlashSale, got.Kind)
	assert.Equal(t, "fs1", got.CampaignID)
}

func TestBestFor_PicksBestAmongMultipleSales(t *testing.T) {
	s := Set{FlashSales: []FlashSale{
		activeSale("fs1", "10", "p1"),
		activeSale("fs2", "30", "p1"),
		activeSale("fs3", "20", "p1"),
	}}

	got := s.BestFor("p1", "v1", "", d("1000"), now)

	assert.Equal(t, "fs2", got.CampaignID)
	assert.True(t, d("300.00").Equal(got.Discount))
}

func TestBestFor_IneligibleSegmentFallsBackToSale(t *testing.T) {
	s := Set{
		FlashSales:   []FlashSale{activeSale("fs1", "10", "p1")},
		PricingRules: []PricingRule{activeRule("pr1", "50", []string{"premium"}, "p1")},
	}

	got := s.BestFor("p1", "v1", "regular", d("1000"), now)

	assert.Equal(t, KindFlashSale, got.Kind)
	assert.True(t, d("100.00").Equal(got.Discount))
}
