package fulfillment

import (
	"fmt"
	"strings"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/models"
)

// blindShipFrom builds the ship-from address for a blind shipment out of
// the order's billing address. Every field a carrier needs must be present.
func blindShipFrom(order *models.Order) (models.Address, error) {
	billing := order.BillingAddress
	from := models.Address{
		Name:       strings.TrimSpace(billing.Name),
		Company:    strings.TrimSpace(billing.Company),
		Street1:    strings.TrimSpace(billing.Street1),
		Street2:    strings.TrimSpace(billing.Street2),
		City:       strings.TrimSpace(billing.City),
		State:      strings.TrimSpace(billing.State),
		PostalCode: strings.TrimSpace(billing.PostalCode),
		Country:    strings.TrimSpace(billing.Country),
		Phone:      strings.TrimSpace(billing.Phone),
	}

	var missing []string
	if from.Name == "" && from.Company == "" {
		missing = append(missing, "name")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"street", from.Street1},
		{"city", from.City},
		{"state", from.State},
		{"postal code", from.PostalCode},
		{"country", from.Country},
		{"phone", from.Phone},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return models.Address{}, fmt.Errorf("%w: missing %s", ErrIncompleteBlindShipAddress, strings.Join(missing, ", "))
	}
	return from, nil
}

// carrierBilling resolves who pays for the label. Third-party billing takes
// the postal code from the assignment, then the account on file, then the
// order's billing address.
func carrierBilling(order *models.Order, billing CarrierBilling) (carrier.Billing, error) {
	if !billing.BillToCustomer {
		return carrier.Billing{Party: carrier.BillSender}, nil
	}

	account := firstNonEmpty(billing.AccountNumber, order.CarrierAccountNumber)
	if account == "" {
		return carrier.Billing{}, fmt.Errorf("%w: bill to customer needs a carrier account number", ErrInvalidInput)
	}
	zip := firstNonEmpty(billing.AccountZip, order.CarrierAccountZip, order.BillingAddress.PostalCode)
	if zip == "" {
		return carrier.Billing{}, ErrNoThirdPartyBillingZip
	}
	return carrier.Billing{
		Party:         carrier.BillThirdParty,
		AccountNumber: account,
		PostalCode:    zip,
		CountryCode:   strings.ToUpper(strings.TrimSpace(order.BillingAddress.Country)),
	}, nil
}

// methodLabel picks the shipping method printed on documents and sent to
// the carrier. A customer-billed label keeps the service the customer chose.
func methodLabel(order *models.Order, options ShipmentOptions) string {
	if options.Billing.BillToCustomer {
		if label := strings.TrimSpace(order.CustomerCarrierService); label != "" {
			return label
		}
	}
	return firstNonEmpty(options.MethodLabel, order.ShippingMethod)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
