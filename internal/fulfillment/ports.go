package fulfillment

import (
	"context"

	"github.com/google/uuid"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/catalog"
	"github.com/gitshopapp/dropship/internal/documents"
	"github.com/gitshopapp/dropship/internal/email"
	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/parts"
	"github.com/gitshopapp/dropship/internal/storefront"
)

// Store opens the single transaction a run executes in.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is every read and write a run performs. Lookups of missing rows
// return pgx.ErrNoRows.
type Tx interface {
	GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrderLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	GetSupplier(ctx context.Context, supplierID uuid.UUID) (*models.Supplier, error)
	// MaxPONumber returns the highest numeric PO number issued so far and
	// serializes concurrent allocators until the transaction ends.
	MaxPONumber(ctx context.Context) (int64, bool, error)
	CreatePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error
	UpdatePurchaseOrderDocuments(ctx context.Context, poID uuid.UUID, documentLocation, packingSlipLocation string) error
	MarkPurchaseOrderSent(ctx context.Context, poID uuid.UUID) error
	CreateShipment(ctx context.Context, shipment *models.Shipment) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus) error
	UpdateOrderCompliance(ctx context.Context, orderID uuid.UUID, info map[string]string) error
}

type DocumentGenerator interface {
	PurchaseOrderPDF(ctx context.Context, in documents.PurchaseOrderInput) ([]byte, error)
	PackingSlipPDF(ctx context.Context, in documents.PackingSlipInput) ([]byte, error)
}

type LabelService interface {
	BookLabel(ctx context.Context, req carrier.LabelRequest) (*carrier.Label, error)
}

type ObjectStore interface {
	Put(ctx context.Context, data []byte, suggestedPath string) (string, error)
}

type Notifier interface {
	SendDocumentBundle(ctx context.Context, bundle email.Bundle) (*email.Receipt, error)
}

type StorefrontSync interface {
	RecordShipment(ctx context.Context, externalOrderID string, shipment storefront.Shipment) error
	SetOrderStatus(ctx context.Context, externalOrderID, statusCode string) error
}

type PartResolver interface {
	Resolve(ctx context.Context, sku string) (*parts.Resolution, error)
	Describe(ctx context.Context, resolution *parts.Resolution, storedName string) (string, error)
}

// ServiceCatalog maps shipping-method labels to carriers.
type ServiceCatalog interface {
	Lookup(label string) (catalog.CarrierService, bool)
}
