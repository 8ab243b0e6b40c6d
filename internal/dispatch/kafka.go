// Package dispatch hands shipment jobs to the fulfilment pipeline.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/order"
)

// ShipmentMarker records a shipment as dispatched when the broker path is
// unavailable and the job is handled inline.
type ShipmentMarker interface {
	MarkShipmentDispatched(ctx context.Context, shipmentID, trackingID string) error
}

// KafkaDispatcher publishes shipment jobs to the shipment topic, keyed by
// order id so one order's shipments stay in partition order.
type KafkaDispatcher struct {
	writer    *kafka.Writer
	shipments ShipmentMarker
}

var _ order.Dispatcher = (*KafkaDispatcher)(nil)

// NewKafkaDispatcher creates a dispatcher writing to the given brokers.
func NewKafkaDispatcher(shipments ShipmentMarker, topic string, brokers ...string) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaDispatcher{writer: w, shipments: shipments}
}

func (d *KafkaDispatcher) Enqueue(ctx context.Context, job order.ShipmentJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal shipment job: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(job.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("shipment.requested")},
		},
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish shipment job: %w", err)
	}
	return nil
}

// DispatchSync handles the job inline: the shipment is marked dispatched with
// a locally assigned tracking id so fulfilment can reconcile it later.
func (d *KafkaDispatcher) DispatchSync(ctx context.Context, job order.ShipmentJob) error {
	trackingID := uuid.New().String()
	if err := d.shipments.MarkShipmentDispatched(ctx, job.ShipmentID, trackingID); err != nil {
		return fmt.Errorf("mark shipment dispatched: %w", err)
	}
	zctx.From(ctx).Info("shipment dispatched synchronously",
		zap.String("shipment_id", job.ShipmentID),
		zap.String("tracking_id", trackingID))
	return nil
}

// Close flushes and closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
