// Package storefront reflects shipments and order status back to the
// storefront that owns the original order.
package storefront

import (
	"context"
	"log/slog"

	"github.com/gitshopapp/dropship/internal/logging"
)

type ShippedItem struct {
	ExternalLineItemID string `json:"external_line_item_id"`
	SKU                string `json:"sku"`
	Quantity           int    `json:"quantity"`
}

type Shipment struct {
	TrackingNumber string        `json:"tracking_number"`
	Carrier        string        `json:"carrier"`
	MethodLabel    string        `json:"method_label"`
	TrackingURL    string        `json:"tracking_url,omitempty"`
	Items          []ShippedItem `json:"items"`
}

// Sync is implemented by every storefront backend.
type Sync interface {
	RecordShipment(ctx context.Context, externalOrderID string, shipment Shipment) error
	SetOrderStatus(ctx context.Context, externalOrderID, statusCode string) error
}

// Noop logs calls and does nothing else. It backs deployments without a
// storefront integration.
type Noop struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) RecordShipment(ctx context.Context, externalOrderID string, shipment Shipment) error {
	logging.FromContext(ctx, n.logger).Debug("storefront sync disabled; shipment not recorded",
		"external_order_id", externalOrderID,
		"tracking_number", shipment.TrackingNumber,
	)
	return nil
}

func (n *Noop) SetOrderStatus(ctx context.Context, externalOrderID, statusCode string) error {
	logging.FromContext(ctx, n.logger).Debug("storefront sync disabled; status not set",
		"external_order_id", externalOrderID,
		"status", statusCode,
	)
	return nil
}
