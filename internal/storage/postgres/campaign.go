package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/campaign"
	"github.com/tradecart/marketplace/internal/domain/discount"
)

const (
	activeFlashSalesSQL = `SELECT id, vendor_id, product_ids, discount_type, discount_value, starts_at, ends_at, active
		FROM flash_sales
		WHERE vendor_id = ANY($1) AND active = TRUE AND starts_at <= $2 AND ends_at >= $2`

	activePricingRulesSQL = `SELECT id, vendor_id, product_ids, segments, discount_type, discount_value, starts_at, ends_at, active
		FROM pricing_rules
		WHERE vendor_id = ANY($1) AND active = TRUE
		  AND (starts_at IS NULL OR starts_at <= $2)
		  AND (ends_at IS NULL OR ends_at >= $2)`
)

var _ campaign.Repository = (*CampaignRepository)(nil)

// CampaignRepository implements campaign.Repository backed by PostgreSQL.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository returns a CampaignRepository that uses the given pool.
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

// ActiveForVendors loads the flash sales and pricing rules live at the given
// instant for the given vendors, in two batch queries.
func (r *CampaignRepository) ActiveForVendors(ctx context.Context, vendorIDs []string, at time.Time) (campaign.Set, error) {
	var set campaign.Set

	rows, err := r.pool.Query(ctx, activeFlashSalesSQL, vendorIDs, at)
	if err != nil {
		return set, fmt.Errorf("listing flash sales: %w", err)
	}
	set.FlashSales, err = pgx.CollectRows(rows, scanFlashSale)
	if err != nil {
		return set, fmt.Errorf("scanning flash sales: %w", err)
	}

	rows, err = r.pool.Query(ctx, activePricingRulesSQL, vendorIDs, at)
	if err != nil {
		return set, fmt.Errorf("listing pricing rules: %w", err)
	}
	set.PricingRules, err = pgx.CollectRows(rows, scanPricingRule)
	if err != nil {
		return set, fmt.Errorf("scanning pricing rules: %w", err)
	}

	return set, nil
}

func scanFlashSale(row pgx.CollectableRow) (campaign.FlashSale, error) {
	var (
		f     campaign.FlashSale
		typ   string
		value decimal.Decimal
	)
	err := row.Scan(&f.ID, &f.VendorID, &f.ProductIDs, &typ, &value, &f.StartsAt, &f.EndsAt, &f.Active)
	f.DiscountType = discount.Type(typ)
	f.DiscountValue = value
	return f, err
}

func scanPricingRule(row pgx.CollectableRow) (campaign.PricingRule, error) {
	var (
		r     campaign.PricingRule
		typ   string
		value decimal.Decimal
	)
	err := row.Scan(&r.ID, &r.VendorID, &r.ProductIDs, &r.Segments, &typ, &value, &r.StartsAt, &r.EndsAt, &r.Active)
	r.DiscountType = discount.Type(typ)
	r.DiscountValue = value
	return r, err
}
