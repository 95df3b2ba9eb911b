package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/models"
)

func completeBilling() models.Address {
	return models.Address{
		Company:    "Hopper Labs",
		Street1:    "9 Compiler Ct",
		City:       "Arlington",
		State:      "VA",
		PostalCode: "22201",
		Country:    "US",
		Phone:      "703-555-0199",
	}
}

func TestBlindShipFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*models.Address)
		wantErr bool
	}{
		{name: "complete", mutate: func(*models.Address) {}},
		{name: "no street", mutate: func(a *models.Address) { a.Street1 = "  " }, wantErr: true},
		{name: "no name or company", mutate: func(a *models.Address) { a.Company = "" }, wantErr: true},
		{name: "no phone", mutate: func(a *models.Address) { a.Phone = "" }, wantErr: true},
		{name: "no country", mutate: func(a *models.Address) { a.Country = "" }, wantErr: true},
		{name: "no postal code", mutate: func(a *models.Address) { a.PostalCode = "" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			billing := completeBilling()
			tt.mutate(&billing)
			from, err := blindShipFrom(&models.Order{BillingAddress: billing})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrAddressIncomplete)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Hopper Labs", from.DisplayName())
			assert.Empty(t, from.Email)
		})
	}
}

func TestCarrierBilling(t *testing.T) {
	t.Parallel()

	order := &models.Order{
		BillingAddress:       completeBilling(),
		CarrierAccountNumber: "ONFILE1",
		CarrierAccountZip:    "10001",
	}

	billing, err := carrierBilling(order, CarrierBilling{})
	require.NoError(t, err)
	assert.Equal(t, carrier.BillSender, billing.Party)

	billing, err = carrierBilling(order, CarrierBilling{BillToCustomer: true})
	require.NoError(t, err)
	assert.Equal(t, carrier.BillThirdParty, billing.Party)
	assert.Equal(t, "ONFILE1", billing.AccountNumber)
	assert.Equal(t, "10001", billing.PostalCode)
	assert.Equal(t, "US", billing.CountryCode)

	billing, err = carrierBilling(order, CarrierBilling{BillToCustomer: true, AccountNumber: "REQ2", AccountZip: "94105"})
	require.NoError(t, err)
	assert.Equal(t, "REQ2", billing.AccountNumber)
	assert.Equal(t, "94105", billing.PostalCode)

	_, err = carrierBilling(&models.Order{}, CarrierBilling{BillToCustomer: true})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = carrierBilling(&models.Order{CarrierAccountNumber: "X1"}, CarrierBilling{BillToCustomer: true})
	require.ErrorIs(t, err, ErrNoThirdPartyBillingZip)
	require.ErrorIs(t, err, ErrAddressIncomplete)
}

func TestMethodLabel(t *testing.T) {
	t.Parallel()

	order := &models.Order{ShippingMethod: "USPS Priority", CustomerCarrierService: "FedEx Ground"}

	assert.Equal(t, "USPS Priority", methodLabel(order, ShipmentOptions{}))
	assert.Equal(t, "UPS Ground", methodLabel(order, ShipmentOptions{MethodLabel: "UPS Ground"}))
	assert.Equal(t, "FedEx Ground", methodLabel(order, ShipmentOptions{
		MethodLabel: "UPS Ground",
		Billing:     CarrierBilling{BillToCustomer: true},
	}))
}
