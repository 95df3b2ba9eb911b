package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusNew                 OrderStatus = "new"
	StatusRFQSent             OrderStatus = "RFQ Sent"
	StatusProcessed           OrderStatus = "Processed"
	StatusUnpaidNotInvoiced   OrderStatus = "Unpaid/Not Invoiced"
	StatusUnpaidInvoiced      OrderStatus = "Unpaid/Invoiced"
	StatusInternationalManual OrderStatus = "international_manual"
	StatusPending             OrderStatus = "pending"
	StatusCompletedOffline    OrderStatus = "Completed Offline"
)

// IsTerminal reports whether an order in this status may no longer be fulfilled.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusCompletedOffline, StatusPending, StatusRFQSent, StatusUnpaidInvoiced:
		return true
	default:
		return false
	}
}

type Address struct {
	Name       string `json:"name"`
	Company    string `json:"company"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// DisplayName prefers the person's name and falls back to the company.
func (a Address) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return strings.TrimSpace(a.Company)
}

// Lines formats the address for printed documents.
func (a Address) Lines() []string {
	lines := make([]string, 0, 5)
	if name := strings.TrimSpace(a.Name); name != "" {
		lines = append(lines, name)
	}
	if company := strings.TrimSpace(a.Company); company != "" {
		lines = append(lines, company)
	}
	for _, street := range []string{a.Street1, a.Street2} {
		if trimmed := strings.TrimSpace(street); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	cityLine := strings.TrimSpace(strings.Join(nonEmpty(a.City, strings.TrimSpace(a.State+" "+a.PostalCode)), ", "))
	if cityLine != "" {
		lines = append(lines, cityLine)
	}
	if country := strings.TrimSpace(a.Country); country != "" {
		lines = append(lines, country)
	}
	return lines
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type Order struct {
	ID                     uuid.UUID         `json:"id"`
	ExternalID             string            `json:"external_id"`
	CustomerEmail          string            `json:"customer_email"`
	BillingAddress         Address           `json:"billing_address"`
	ShippingAddress        Address           `json:"shipping_address"`
	ShippingMethod         string            `json:"shipping_method"`
	CustomerCarrierService string            `json:"customer_carrier_service"`
	CarrierAccountNumber   string            `json:"-"`
	CarrierAccountZip      string            `json:"carrier_account_zip"`
	PaymentMethod          string            `json:"payment_method"`
	CustomerNotes          string            `json:"customer_notes"`
	ComplianceInfo         map[string]string `json:"compliance_info"`
	Status                 OrderStatus       `json:"status"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

type OrderLineItem struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order_id"`
	ExternalID string          `json:"external_id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}
