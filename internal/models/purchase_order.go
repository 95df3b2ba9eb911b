package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseOrderStatus string

const (
	POStatusNew            PurchaseOrderStatus = "New"
	POStatusSentToSupplier PurchaseOrderStatus = "SENT_TO_SUPPLIER"
)

const DefaultItemCondition = "New"

type PurchaseOrder struct {
	ID                  uuid.UUID           `json:"id"`
	PONumber            string              `json:"po_number"`
	OrderID             uuid.UUID           `json:"order_id"`
	SupplierID          uuid.UUID           `json:"supplier_id"`
	IssueDate           time.Time           `json:"issue_date"`
	TotalAmount         decimal.Decimal     `json:"total_amount"`
	Status              PurchaseOrderStatus `json:"status"`
	DocumentLocation    string              `json:"document_location"`
	PackingSlipLocation string              `json:"packing_slip_location"`
	LineItems           []POLineItem        `json:"line_items"`
	CreatedAt           time.Time           `json:"created_at"`
}

type POLineItem struct {
	ID              uuid.UUID       `json:"id"`
	PurchaseOrderID uuid.UUID       `json:"purchase_order_id"`
	OrderLineItemID uuid.UUID       `json:"order_line_item_id"`
	SKU             string          `json:"sku"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Condition       string          `json:"condition"`
}

// LineTotal is quantity times unit cost, unrounded.
func (li POLineItem) LineTotal() decimal.Decimal {
	return li.UnitCost.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ComputeTotal sums the line totals and rounds once to the currency's minor unit.
func ComputeTotal(items []POLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}
