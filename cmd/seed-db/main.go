// Command seed-db loads a demo dataset: two vendors with products, a flash
// sale, a segment pricing rule, coupons, tax and shipping settings, and a
// customer address. Intended for local development and smoke testing.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradecart/marketplace/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	for _, step := range []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"vendors", seedVendors},
		{"products", seedProducts},
		{"campaigns", seedCampaigns},
		{"coupons", seedCoupons},
		{"settings", seedSettings},
		{"addresses", seedAddresses},
	} {
		slog.Info("seeding", slog.String("step", step.name))
		if err := step.fn(ctx, pool); err != nil {
			return errors.Wrap(err, "seed "+step.name)
		}
	}
	return nil
}

func seedVendors(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO vendors (id, name, active) VALUES
			('vendor-electro', 'Electro Hub', TRUE),
			('vendor-fashion', 'Fashion Street', TRUE)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active`)
	return err
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO products
			(id, vendor_id, name, price, discount_type, discount_value, fixed_shipping, tax_mode, stock, min_quantity, active)
		VALUES
			('prod-headphones', 'vendor-electro', 'Wireless Headphones', 1000.00, 'percentage', 10, 0, 'exclusive', 50, 1, TRUE),
			('prod-powerbank',  'vendor-electro', 'Power Bank 20k',      1500.00, '',           0, 40, 'exclusive', 30, 1, TRUE),
			('prod-tshirt',     'vendor-fashion', 'Graphic T-Shirt',      599.00, 'flat',      50, 0, 'inclusive', 200, 2, TRUE),
			('prod-sneakers',   'vendor-fashion', 'Canvas Sneakers',     2499.00, '',           0, 0, 'inclusive', 80, 1, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			price = EXCLUDED.price, discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value, stock = EXCLUDED.stock`)
	return err
}

func seedCampaigns(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now()
	if _, err := pool.Exec(ctx, `
		INSERT INTO flash_sales (id, vendor_id, product_ids, discount_type, discount_value, starts_at, ends_at, active)
		VALUES ('flash-electro-weekend', 'vendor-electro', '{prod-headphones}', 'percentage', 25, $1, $2, TRUE)
		ON CONFLICT (id) DO UPDATE SET starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at`,
		now.Add(-time.Hour), now.Add(48*time.Hour)); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, `
		INSERT INTO pricing_rules (id, vendor_id, product_ids, segments, discount_type, discount_value, starts_at, ends_at, active)
		VALUES ('rule-fashion-premium', 'vendor-fashion', '{prod-sneakers}', '{premium}', 'percentage', 15, NULL, NULL, TRUE)
		ON CONFLICT (id) DO UPDATE SET discount_value = EXCLUDED.discount_value`)
	return err
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now()
	_, err := pool.Exec(ctx, `
		INSERT INTO coupons (id, code, vendor_id, discount_type, discount_value, valid_from, valid_until, max_uses, uses, active)
		VALUES
			('coupon-electro20', 'ELECTRO20', 'vendor-electro', 'percentage', 20, $1, $2, 1000, 0, TRUE),
			('coupon-fashion100', 'FASHION100', 'vendor-fashion', 'flat', 100, $1, $2, 0, 0, TRUE)
		ON CONFLICT (id) DO UPDATE SET valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until`,
		now.Add(-time.Hour), now.Add(30*24*time.Hour))
	return err
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
		INSERT INTO tax_settings (vendor_id, default_rate, region_overrides, tax_shipping) VALUES
			('vendor-electro', 18, '[{"region":"KA","rate":12}]', FALSE),
			('vendor-fashion', 12, '[]', TRUE)
		ON CONFLICT (vendor_id) DO UPDATE SET
			default_rate = EXCLUDED.default_rate, region_overrides = EXCLUDED.region_overrides`); err != nil {
		return err
	}
	_, err := pool.Exec(ctx, `
		INSERT INTO shipping_rules (vendor_id, flat_rate, free_above, active) VALUES
			('vendor-electro', 50, 0, TRUE),
			('vendor-fashion', 80, 1500, TRUE)
		ON CONFLICT (vendor_id) DO UPDATE SET
			flat_rate = EXCLUDED.flat_rate, free_above = EXCLUDED.free_above`)
	return err
}

func seedAddresses(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO addresses (id, customer_id, region, line1, city, postal_code)
		VALUES ('addr-demo', 'customer-demo', 'KA', '42 MG Road', 'Bengaluru', '560001')
		ON CONFLICT (id) DO UPDATE SET region = EXCLUDED.region`)
	return err
}
