package storefront

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/observability"
)

const (
	OperationRecordShipment = "record_shipment"
	OperationSetOrderStatus = "set_order_status"
)

// RetryMessage is the queued form of a storefront call that failed.
type RetryMessage struct {
	Operation       string    `json:"operation"`
	ExternalOrderID string    `json:"external_order_id"`
	Shipment        *Shipment `json:"shipment,omitempty"`
	StatusCode      string    `json:"status_code,omitempty"`
	Error           string    `json:"error"`
	FailedAt        time.Time `json:"failed_at"`
}

// Publisher queues retry messages.
type Publisher interface {
	PublishJSON(ctx context.Context, v any, attributes map[string]string) (string, error)
}

// Retrying wraps a Sync and queues failed calls for later replay. The
// original error is still returned so callers can log it.
type Retrying struct {
	next      Sync
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewRetrying(next Sync, publisher Publisher, logger *slog.Logger) *Retrying {
	return &Retrying{next: next, publisher: publisher, logger: logger, now: time.Now}
}

func (r *Retrying) RecordShipment(ctx context.Context, externalOrderID string, shipment Shipment) error {
	err := r.next.RecordShipment(ctx, externalOrderID, shipment)
	if err != nil {
		r.enqueue(ctx, RetryMessage{
			Operation:       OperationRecordShipment,
			ExternalOrderID: externalOrderID,
			Shipment:        &shipment,
		}, err)
	}
	return err
}

func (r *Retrying) SetOrderStatus(ctx context.Context, externalOrderID, statusCode string) error {
	err := r.next.SetOrderStatus(ctx, externalOrderID, statusCode)
	if err != nil {
		r.enqueue(ctx, RetryMessage{
			Operation:       OperationSetOrderStatus,
			ExternalOrderID: externalOrderID,
			StatusCode:      statusCode,
		}, err)
	}
	return err
}

func (r *Retrying) enqueue(ctx context.Context, msg RetryMessage, cause error) {
	logger := logging.FromContext(ctx, r.logger)
	meter := observability.MeterFromContext(ctx)

	msg.Error = cause.Error()
	msg.FailedAt = r.now().UTC()
	id, err := r.publisher.PublishJSON(ctx, msg, map[string]string{
		"operation":         msg.Operation,
		"external_order_id": msg.ExternalOrderID,
	})
	if err != nil {
		meter.Count("storefront.retry.enqueue_failed", 1, sentry.WithAttributes(
			attribute.String("operation", msg.Operation),
		))
		logger.Error("failed to queue storefront retry", "error", err, "operation", msg.Operation, "external_order_id", msg.ExternalOrderID)
		return
	}
	meter.Count("storefront.retry.enqueued", 1, sentry.WithAttributes(
		attribute.String("operation", msg.Operation),
	))
	logger.Warn("queued storefront retry", "message_id", id, "operation", msg.Operation, "external_order_id", msg.ExternalOrderID)
}
