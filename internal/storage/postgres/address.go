package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradecart/marketplace/internal/domain/order"
)

const addressRegionSQL = `SELECT region FROM addresses WHERE id = $1 AND customer_id = $2`

var _ order.AddressSource = (*AddressRepository)(nil)

// AddressRepository resolves a customer's address to its tax region. The
// ownership check is part of the query so one customer cannot checkout
// against another's address.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

func (r *AddressRepository) Region(ctx context.Context, customerID, addressID string) (string, error) {
	var region string
	err := r.pool.QueryRow(ctx, addressRegionSQL, addressID, customerID).Scan(&region)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errors.Errorf("address %q not found for customer", addressID)
		}
		return "", fmt.Errorf("resolving address %q region: %w", addressID, err)
	}
	return region, nil
}
