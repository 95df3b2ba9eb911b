package fulfillment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/models"
)

type fixture struct {
	store      *memoryStore
	documents  *fakeDocuments
	labels     *fakeLabels
	objects    *fakeObjects
	notifier   *fakeNotifier
	storefront *fakeStorefront
	settings   Settings

	order    models.Order
	items    []models.OrderLineItem
	supplier models.Supplier
}

func newFixture(t *testing.T, itemCount int) *fixture {
	t.Helper()

	f := &fixture{
		store:      newMemoryStore(),
		documents:  &fakeDocuments{},
		labels:     &fakeLabels{},
		objects:    &fakeObjects{},
		notifier:   &fakeNotifier{},
		storefront: &fakeStorefront{},
		settings: Settings{
			ShipFrom: models.Address{
				Company:    "Parts Depot",
				Street1:    "1 Warehouse Rd",
				City:       "Reno",
				State:      "NV",
				PostalCode: "89501",
				Country:    "US",
				Phone:      "775-555-0100",
			},
			CompanyName: "Parts Depot",
			LogoPath:    "/srv/logo.png",
		},
	}

	f.order = models.Order{
		ID:         uuid.New(),
		ExternalID: "acme/shop#42",
		BillingAddress: models.Address{
			Name:       "Grace Hopper",
			Street1:    "9 Compiler Ct",
			City:       "Arlington",
			State:      "VA",
			PostalCode: "22201",
			Country:    "US",
			Phone:      "703-555-0199",
		},
		ShippingAddress: models.Address{
			Name:       "Grace Hopper",
			Street1:    "9 Compiler Ct",
			City:       "Arlington",
			State:      "VA",
			PostalCode: "22201",
			Country:    "US",
		},
		ShippingMethod: "UPS Ground",
		Status:         models.StatusNew,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.orders[f.order.ID] = f.order

	for i := 0; i < itemCount; i++ {
		f.items = append(f.items, models.OrderLineItem{
			ID:         uuid.New(),
			OrderID:    f.order.ID,
			ExternalID: "line-" + strconv.Itoa(i+1),
			SKU:        "SKU-" + strconv.Itoa(i+1),
			Name:       "Widget " + strconv.Itoa(i+1),
			Quantity:   i + 1,
		})
	}
	f.store.lineItems[f.order.ID] = f.items

	f.supplier = models.Supplier{
		ID:           uuid.New(),
		Name:         "Acme Supply",
		Email:        "orders@acme.example",
		PaymentTerms: "Net 30",
	}
	f.store.suppliers[f.supplier.ID] = f.supplier
	return f
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(Dependencies{
		Store:      f.store,
		Documents:  f.documents,
		Labels:     f.labels,
		Objects:    f.objects,
		Notifier:   f.notifier,
		Storefront: f.storefront,
		Now:        func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) },
	}, f.settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return o
}

func (f *fixture) supplierAssignment(shipment ShipmentOptions, items ...models.OrderLineItem) SupplierAssignment {
	a := SupplierAssignment{SupplierID: f.supplier.ID, Shipment: shipment}
	for _, item := range items {
		a.Items = append(a.Items, SupplierItem{
			LineItemID: item.ID,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			UnitCost:   decimal.RequireFromString("10.25"),
		})
	}
	return a
}

func labelled() ShipmentOptions {
	return ShipmentOptions{WeightLbs: decimal.NewFromInt(3), MethodLabel: "UPS Ground", Carrier: "ups"}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{}, Settings{}, slog.Default())
	require.Error(t, err)
}

func TestProcessOrder_SupplierCoversWholeOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(labelled(), f.items...),
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessed, result.Status)
	assert.False(t, result.Partial)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "200001", result.Assignments[0].PONumber)
	assert.Equal(t, "1Z001", result.Assignments[0].TrackingNumber)
	assert.Equal(t, "UPS", result.Assignments[0].Carrier)

	require.Len(t, f.store.pos, 1)
	po := f.store.pos[0]
	assert.Equal(t, models.POStatusSentToSupplier, po.Status)
	// 1 x 10.25 + 2 x 10.25
	assert.True(t, po.TotalAmount.Equal(decimal.RequireFromString("30.75")), "total = %s", po.TotalAmount)
	assert.NotEmpty(t, po.DocumentLocation)
	assert.NotEmpty(t, po.PackingSlipLocation)
	for _, line := range po.LineItems {
		assert.Equal(t, models.DefaultItemCondition, line.Condition)
	}

	require.Len(t, f.store.shipments, 1)
	require.NotNil(t, f.store.shipments[0].PurchaseOrderID)
	assert.Equal(t, po.ID, *f.store.shipments[0].PurchaseOrderID)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, f.supplier.Email, sent[0].To)
	require.Len(t, sent[0].Attachments, 3)
	assert.Equal(t, "PO-200001.pdf", sent[0].Attachments[0].Filename)
	assert.Equal(t, "PackingSlip-200001.pdf", sent[0].Attachments[1].Filename)
	assert.Equal(t, "Label-200001.pdf", sent[0].Attachments[2].Filename)

	assert.Equal(t, models.StatusProcessed, f.store.order(f.order.ID).Status)
	require.Len(t, f.storefront.shipments, 1)
	assert.Len(t, f.storefront.shipments[0].Items, 2)
	assert.Equal(t, []string{DefaultShippedStatusCode}, f.storefront.statuses)
}

func TestProcessOrder_SupplierAndInternalSplit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items[0], f.items[1]),
		InternalFulfillmentAssignment{LineItemIDs: []uuid.UUID{f.items[2].ID}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessed, result.Status)
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, InternalPONumber, result.Assignments[1].PONumber)
	assert.Equal(t, TargetInternal, result.Assignments[1].Target)
	assert.NotEmpty(t, result.Assignments[1].PackingSlipLocation)
	assert.Len(t, f.store.pos, 1)
	assert.Empty(t, f.store.shipments)
	assert.Empty(t, f.labels.requests)

	require.Len(t, f.documents.packing, 2)
	supplierSlip := f.documents.packing[0]
	require.Len(t, supplierSlip.ShippingSeparately, 1)
	assert.Equal(t, f.items[2].SKU, supplierSlip.ShippingSeparately[0].SKU)
	assert.True(t, f.documents.packing[1].IsInternal)

	// no tracking from the supplier, so the storefront is left alone
	assert.Empty(t, f.storefront.statuses)
}

func TestProcessOrder_PartialOrderStaysOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items[0]),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, result.Status)
	assert.Equal(t, models.StatusNew, f.store.order(f.order.ID).Status)
	assert.Len(t, f.store.pos, 1)
}

func TestProcessOrder_TerminalOrderRejected(t *testing.T) {
	t.Parallel()

	for _, status := range []models.OrderStatus{models.StatusProcessed, models.StatusCompletedOffline, models.StatusPending} {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 1)
			order := f.order
			order.Status = status
			f.store.orders[order.ID] = order
			o := f.orchestrator(t)

			_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
				f.supplierAssignment(labelled(), f.items...),
			})
			require.ErrorIs(t, err, ErrAlreadyFinalized)
			assert.Zero(t, f.store.writes)
			assert.Zero(t, f.documents.calls())
			assert.Empty(t, f.notifier.sent())
		})
	}
}

func TestProcessOrder_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), uuid.New(), []Assignment{
		InternalFulfillmentAssignment{},
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, ErrOrderNotFound)

	assignment := f.supplierAssignment(ShipmentOptions{}, f.items...)
	assignment.SupplierID = uuid.New()
	_, err = o.ProcessOrder(context.Background(), f.order.ID, []Assignment{assignment})
	require.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestProcessOrder_LineItemFromAnotherOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		InternalFulfillmentAssignment{LineItemIDs: []uuid.UUID{uuid.New()}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, f.store.writes)
}

func TestProcessOrder_SupplierLabelFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	f.labels.err = errBoom
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(labelled(), f.items...),
	})
	require.ErrorIs(t, err, ErrDocumentGenerationFailed)
	require.ErrorIs(t, err, ErrCarrierBookingFailed)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepBookLabel, stepErr.Step)
	assert.Equal(t, "200001", stepErr.PONumber)

	assert.Empty(t, f.store.pos)
	assert.Empty(t, f.notifier.sent())
	assert.Equal(t, models.StatusNew, f.store.order(f.order.ID).Status)
}

func TestProcessOrder_LaterFailureRollsBackEarlierAssignments(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	o := f.orchestrator(t)

	second := f.supplierAssignment(ShipmentOptions{}, f.items[1])
	second.SupplierID = uuid.New()
	f.store.suppliers[second.SupplierID] = models.Supplier{ID: second.SupplierID, Name: "Beta", Email: "po@beta.example"}
	f.labels.err = errBoom
	second.Shipment = labelled()

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items[0]),
		second,
	})
	require.ErrorIs(t, err, ErrDocumentGenerationFailed)
	assert.Empty(t, f.store.pos)
	assert.Empty(t, f.store.shipments)
	assert.Zero(t, f.store.writes)
}

func TestProcessOrder_BlindShipNeedsCompleteBillingAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	order := f.order
	order.BillingAddress.Street1 = ""
	f.store.orders[order.ID] = order
	o := f.orchestrator(t)

	options := labelled()
	options.BlindShip = true
	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(options, f.items...),
	})
	require.ErrorIs(t, err, ErrAddressIncomplete)
	require.ErrorIs(t, err, ErrIncompleteBlindShipAddress)
	assert.Zero(t, f.documents.calls())
	assert.Empty(t, f.labels.requests)
}

func TestProcessOrder_BlindShipHidesSeller(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	o := f.orchestrator(t)

	options := labelled()
	options.BlindShip = true
	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(options, f.items...),
	})
	require.NoError(t, err)

	require.Len(t, f.documents.purchase, 1)
	po := f.documents.purchase[0]
	assert.Nil(t, po.Buyer)
	assert.Empty(t, po.LogoPath)
	assert.Equal(t, "Grace Hopper", po.ShipFrom.Name)

	require.Len(t, f.documents.packing, 1)
	slip := f.documents.packing[0]
	assert.Empty(t, slip.CompanyName)
	assert.Empty(t, slip.LogoPath)

	require.Len(t, f.labels.requests, 1)
	assert.Equal(t, "9 Compiler Ct", f.labels.requests[0].ShipFrom.Street1)
}

func TestProcessOrder_ThirdPartyBilling(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	order := f.order
	order.CarrierAccountNumber = "ACCT987654"
	order.CustomerCarrierService = "UPS 2nd Day Air"
	f.store.orders[order.ID] = order
	o := f.orchestrator(t)

	options := labelled()
	options.Billing = CarrierBilling{BillToCustomer: true}
	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(options, f.items...),
	})
	require.NoError(t, err)

	require.Len(t, f.labels.requests, 1)
	billing := f.labels.requests[0].Billing
	assert.Equal(t, carrier.BillThirdParty, billing.Party)
	assert.Equal(t, "ACCT987654", billing.AccountNumber)
	assert.Equal(t, "22201", billing.PostalCode)
	assert.Equal(t, "UPS 2nd Day Air", result.Assignments[0].MethodLabel)
	assert.Contains(t, f.documents.purchase[0].BillingNote, "******7654")
	assert.NotContains(t, f.documents.purchase[0].BillingNote, "ACCT987654")
}

func TestProcessOrder_AllInternalCompletesOffline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		InternalFulfillmentAssignment{LineItemIDs: []uuid.UUID{f.items[0].ID, f.items[1].ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompletedOffline, result.Status)
	assert.Empty(t, f.store.pos)
	assert.Equal(t, models.StatusCompletedOffline, f.store.order(f.order.ID).Status)
	assert.Empty(t, f.notifier.sent())
}

func TestProcessOrder_EmptyInternalAssignmentMarksOffline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{InternalFulfillmentAssignment{}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompletedOffline, result.Status)
	assert.Zero(t, f.documents.calls())
}

func TestProcessOrder_InternalLabelFailureIsWarning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.labels.err = errBoom
	f.settings.WarehouseEmail = "dock@partsdepot.example"
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		InternalFulfillmentAssignment{LineItemIDs: []uuid.UUID{f.items[0].ID}, Shipment: labelled()},
	})
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.NotEmpty(t, result.Assignments[0].Warnings)
	assert.Empty(t, result.Assignments[0].TrackingNumber)
	assert.Empty(t, f.store.shipments)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "dock@partsdepot.example", sent[0].To)
	assert.Len(t, sent[0].Attachments, 1)
}

func TestProcessOrder_InternalLabelBooked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		InternalFulfillmentAssignment{LineItemIDs: []uuid.UUID{f.items[0].ID}, Shipment: labelled()},
	})
	require.NoError(t, err)
	assert.Equal(t, "1Z001", result.Assignments[0].TrackingNumber)
	require.Len(t, f.store.shipments, 1)
	assert.Nil(t, f.store.shipments[0].PurchaseOrderID)
	require.Len(t, f.storefront.shipments, 1)
	assert.Empty(t, f.storefront.statuses)
}

func TestProcessOrder_EmailMissingAttachment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.notifier.drop = "PackingSlip-200001.pdf"
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items...),
	})
	require.ErrorIs(t, err, ErrEmailIncomplete)
	assert.Empty(t, f.store.pos)
	assert.Equal(t, models.StatusNew, f.store.order(f.order.ID).Status)
}

func TestProcessOrder_EmailSendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.notifier.err = errBoom
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items...),
	})
	require.ErrorIs(t, err, ErrEmailIncomplete)
	require.ErrorIs(t, err, errBoom)
}

func TestProcessOrder_DocumentFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.documents.emptySlip = true
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items...),
	})
	require.ErrorIs(t, err, ErrDocumentGenerationFailed)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepPackingSlip, stepErr.Step)
	assert.Empty(t, f.notifier.sent())
}

func TestProcessOrder_PersistenceFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.store.failCreate = errBoom
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items...),
	})
	require.ErrorIs(t, err, ErrPersistenceFailed)
	assert.Equal(t, "persistence_failed", failureReason(err))
}

func TestProcessOrder_PONumbersIncrease(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	second := models.Supplier{ID: uuid.New(), Name: "Beta", Email: "po@beta.example"}
	f.store.suppliers[second.ID] = second
	o := f.orchestrator(t)

	other := f.supplierAssignment(ShipmentOptions{}, f.items[1])
	other.SupplierID = second.ID
	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items[0]),
		other,
	})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, "200001", result.Assignments[0].PONumber)
	assert.Equal(t, "200002", result.Assignments[1].PONumber)
	for _, input := range f.documents.purchase {
		assert.True(t, input.IsPartial)
	}

	next := newFixture(t, 1)
	next.store = f.store
	next.store.orders[next.order.ID] = next.order
	next.store.lineItems[next.order.ID] = next.items
	next.store.suppliers[next.supplier.ID] = next.supplier
	result, err = next.orchestrator(t).ProcessOrder(context.Background(), next.order.ID, []Assignment{
		next.supplierAssignment(ShipmentOptions{}, next.items...),
	})
	require.NoError(t, err)
	assert.Equal(t, "200003", result.Assignments[0].PONumber)
}

func TestProcessOrder_StorefrontFailureIsWarning(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.storefront.err = errBoom
	o := f.orchestrator(t)

	result, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(labelled(), f.items...),
	})
	require.NoError(t, err)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, models.StatusProcessed, f.store.order(f.order.ID).Status)
}

func TestProcessOrder_RecordsComplianceFromNotes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	order := f.order
	order.CustomerNotes = "[compliance] End Use: research\nleave at door"
	f.store.orders[order.ID] = order
	o := f.orchestrator(t)

	_, err := o.ProcessOrder(context.Background(), f.order.ID, []Assignment{
		f.supplierAssignment(ShipmentOptions{}, f.items...),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"end_use": "research"}, f.store.order(f.order.ID).ComplianceInfo)
	assert.Equal(t, "research", f.documents.purchase[0].Order.Compliance["end_use"])
}
