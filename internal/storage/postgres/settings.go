package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradecart/marketplace/internal/domain/shipping"
	"github.com/tradecart/marketplace/internal/domain/tax"
)

const (
	taxSettingsSQL = `SELECT vendor_id, default_rate, region_overrides, tax_shipping
		FROM tax_settings WHERE vendor_id = ANY($1)`

	shippingRulesSQL = `SELECT vendor_id, flat_rate, free_above, active
		FROM shipping_rules WHERE vendor_id = ANY($1)`
)

var (
	_ tax.SettingsSource  = (*SettingsRepository)(nil)
	_ shipping.RuleSource = (*SettingsRepository)(nil)
)

// SettingsRepository batch-loads per-vendor tax settings and shipping rules.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// TaxSettings returns the tax settings for the given vendors. Vendors without
// a row are absent from the map and fall back to the hard default rate.
func (r *SettingsRepository) TaxSettings(ctx context.Context, vendorIDs []string) (map[string]tax.Settings, error) {
	rows, err := r.pool.Query(ctx, taxSettingsSQL, vendorIDs)
	if err != nil {
		return nil, fmt.Errorf("listing tax settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tax.Settings, len(vendorIDs))
	for rows.Next() {
		var (
			s         tax.Settings
			rate      decimal.Decimal
			overrides []byte
		)
		if err := rows.Scan(&s.VendorID, &rate, &overrides, &s.TaxShipping); err != nil {
			return nil, fmt.Errorf("scanning tax settings: %w", err)
		}
		s.DefaultRate = rate
		if err := json.Unmarshal(overrides, &s.Overrides); err != nil {
			return nil, fmt.Errorf("decoding region overrides for vendor %q: %w", s.VendorID, err)
		}
		out[s.VendorID] = s
	}
	return out, rows.Err()
}

// ShippingRules returns the shipping rules for the given vendors. Vendors
// without a rule are absent from the map and contribute no rule-based charge.
func (r *SettingsRepository) ShippingRules(ctx context.Context, vendorIDs []string) (map[string]shipping.Rule, error) {
	rows, err := r.pool.Query(ctx, shippingRulesSQL, vendorIDs)
	if err != nil {
		return nil, fmt.Errorf("listing shipping rules: %w", err)
	}
	defer rows.Close()

	out := make(map[string]shipping.Rule, len(vendorIDs))
	for rows.Next() {
		var rule shipping.Rule
		if err := rows.Scan(&rule.VendorID, &rule.FlatRate, &rule.FreeAbove, &rule.Active); err != nil {
			return nil, fmt.Errorf("scanning shipping rule: %w", err)
		}
		out[rule.VendorID] = rule
	}
	return out, rows.Err()
}
