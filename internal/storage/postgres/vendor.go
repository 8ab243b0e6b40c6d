package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradecart/marketplace/internal/domain/vendor"
)

const (
	getVendorByIDSQL   = `SELECT id, name, active FROM vendors WHERE id = $1`
	getVendorsByIDsSQL = `SELECT id, name, active FROM vendors WHERE id = ANY($1)`
)

var _ vendor.Repository = (*VendorRepository)(nil)

// VendorRepository implements vendor.Repository backed by PostgreSQL.
type VendorRepository struct {
	pool *pgxpool.Pool
}

// NewVendorRepository returns a VendorRepository that uses the given pool.
func NewVendorRepository(pool *pgxpool.Pool) *VendorRepository {
	return &VendorRepository{pool: pool}
}

// GetByID returns a single vendor by its identifier.
func (r *VendorRepository) GetByID(ctx context.Context, id string) (*vendor.Vendor, error) {
	rows, err := r.pool.Query(ctx, getVendorByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting vendor %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVendor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vendor.ErrNotFound
		}
		return nil, fmt.Errorf("getting vendor %q: %w", id, err)
	}
	return &v, nil
}

// GetByIDs returns vendors matching any of the given IDs.
func (r *VendorRepository) GetByIDs(ctx context.Context, ids []string) ([]vendor.Vendor, error) {
	rows, err := r.pool.Query(ctx, getVendorsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting vendors by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVendor)
}

func scanVendor(row pgx.CollectableRow) (vendor.Vendor, error) {
	var v vendor.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Active)
	return v, err
}
