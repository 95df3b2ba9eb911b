package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Shipment struct {
	ID              uuid.UUID       `json:"id"`
	OrderID         uuid.UUID       `json:"order_id"`
	PurchaseOrderID *uuid.UUID      `json:"purchase_order_id,omitempty"`
	TrackingNumber  string          `json:"tracking_number"`
	Carrier         string          `json:"carrier"`
	MethodLabel     string          `json:"method_label"`
	WeightLbs       decimal.Decimal `json:"weight_lbs"`
	LabelLocation   string          `json:"label_location"`
	CreatedAt       time.Time       `json:"created_at"`
}
