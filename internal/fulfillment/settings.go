package fulfillment

import (
	"strings"

	"github.com/gitshopapp/dropship/internal/models"
)

const (
	DefaultPOFloor           int64 = 200001
	DefaultShippedStatusCode       = "shipped"
)

// Settings is the process-wide configuration the orchestrator needs.
type Settings struct {
	// ShipFrom is the internal warehouse address used unless an assignment ships blind.
	ShipFrom    models.Address
	CompanyName string
	LogoPath    string
	POFloor     int64
	// WarehouseEmail receives internal packing slips. Empty disables the notification.
	WarehouseEmail    string
	ShippedStatusCode string
}

func (s Settings) withDefaults() Settings {
	if s.POFloor <= 0 {
		s.POFloor = DefaultPOFloor
	}
	if strings.TrimSpace(s.ShippedStatusCode) == "" {
		s.ShippedStatusCode = DefaultShippedStatusCode
	}
	s.WarehouseEmail = strings.TrimSpace(s.WarehouseEmail)
	return s
}
