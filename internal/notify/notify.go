// Package notify delivers order notifications. The current transport is the
// structured log stream, which the alerting pipeline tails; swapping in email
// or push only needs another order.Notifier implementation.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/order"
)

// LogNotifier writes every notification as a structured log event.
type LogNotifier struct{}

var _ order.Notifier = LogNotifier{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() LogNotifier {
	return LogNotifier{}
}

func (LogNotifier) OrderConfirmed(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("order confirmed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.String("grand_total", o.GrandTotal.String()),
	)
	return nil
}

func (LogNotifier) VendorOrderReceived(ctx context.Context, vendorID string, o *order.Order) error {
	zctx.From(ctx).Info("vendor order received",
		zap.String("order_id", o.ID),
		zap.String("vendor_id", vendorID),
	)
	return nil
}

func (LogNotifier) AdminOrderPlaced(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("admin order placed",
		zap.String("order_id", o.ID),
		zap.Int("line_count", len(o.Lines)),
	)
	return nil
}
