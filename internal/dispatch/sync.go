package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/tradecart/marketplace/internal/domain/order"
)

// Sync dispatches every shipment inline. Used when no broker is configured,
// typically in single-node deployments and tests.
type Sync struct {
	shipments ShipmentMarker
}

var _ order.Dispatcher = (*Sync)(nil)

// NewSync creates a Sync dispatcher.
func NewSync(shipments ShipmentMarker) *Sync {
	return &Sync{shipments: shipments}
}

func (s *Sync) Enqueue(ctx context.Context, job order.ShipmentJob) error {
	return s.DispatchSync(ctx, job)
}

func (s *Sync) DispatchSync(ctx context.Context, job order.ShipmentJob) error {
	return s.shipments.MarkShipmentDispatched(ctx, job.ShipmentID, uuid.New().String())
}
