package models

import "github.com/google/uuid"

type Supplier struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Address      Address   `json:"address"`
	PaymentTerms string    `json:"payment_terms"`
}

type PartMapping struct {
	SKU        string `json:"sku"`
	PartNumber string `json:"part_number"`
	PartType   string `json:"part_type"`
}
