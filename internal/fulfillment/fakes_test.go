package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/documents"
	"github.com/gitshopapp/dropship/internal/email"
	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/storefront"
)

// memoryStore keeps committed rows and applies a transaction's writes only
// when its callback returns nil.
type memoryStore struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]models.Order
	lineItems  map[uuid.UUID][]models.OrderLineItem
	suppliers  map[uuid.UUID]models.Supplier
	pos        []models.PurchaseOrder
	shipments  []models.Shipment
	writes     int
	failCreate error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:    make(map[uuid.UUID]models.Order),
		lineItems: make(map[uuid.UUID][]models.OrderLineItem),
		suppliers: make(map[uuid.UUID]models.Supplier),
	}
}

func (s *memoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, orders: make(map[uuid.UUID]models.Order)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, order := range tx.orders {
		s.orders[id] = order
	}
	s.pos = append(s.pos, tx.pos...)
	s.shipments = append(s.shipments, tx.shipments...)
	s.writes += tx.writes
	return nil
}

func (s *memoryStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

type memoryTx struct {
	store     *memoryStore
	orders    map[uuid.UUID]models.Order
	pos       []models.PurchaseOrder
	shipments []models.Shipment
	writes    int
}

func (t *memoryTx) currentOrder(id uuid.UUID) (models.Order, bool) {
	if order, ok := t.orders[id]; ok {
		return order, true
	}
	order, ok := t.store.orders[id]
	return order, ok
}

func (t *memoryTx) GetOrderForUpdate(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := t.currentOrder(orderID)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &order, nil
}

func (t *memoryTx) ListOrderLineItems(_ context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	return append([]models.OrderLineItem(nil), t.store.lineItems[orderID]...), nil
}

func (t *memoryTx) GetSupplier(_ context.Context, supplierID uuid.UUID) (*models.Supplier, error) {
	supplier, ok := t.store.suppliers[supplierID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &supplier, nil
}

func (t *memoryTx) MaxPONumber(context.Context) (int64, bool, error) {
	var (
		highest int64
		found   bool
	)
	for _, po := range append(append([]models.PurchaseOrder(nil), t.store.pos...), t.pos...) {
		n, err := strconv.ParseInt(po.PONumber, 10, 64)
		if err != nil {
			continue
		}
		if !found || n > highest {
			highest, found = n, true
		}
	}
	return highest, found, nil
}

func (t *memoryTx) CreatePurchaseOrder(_ context.Context, po *models.PurchaseOrder) error {
	if t.store.failCreate != nil {
		return t.store.failCreate
	}
	po.ID = uuid.New()
	t.pos = append(t.pos, *po)
	t.writes++
	return nil
}

func (t *memoryTx) findPO(poID uuid.UUID) (*models.PurchaseOrder, error) {
	for i := range t.pos {
		if t.pos[i].ID == poID {
			return &t.pos[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (t *memoryTx) UpdatePurchaseOrderDocuments(_ context.Context, poID uuid.UUID, documentLocation, packingSlipLocation string) error {
	po, err := t.findPO(poID)
	if err != nil {
		return err
	}
	po.DocumentLocation = documentLocation
	po.PackingSlipLocation = packingSlipLocation
	t.writes++
	return nil
}

func (t *memoryTx) MarkPurchaseOrderSent(_ context.Context, poID uuid.UUID) error {
	po, err := t.findPO(poID)
	if err != nil {
		return err
	}
	po.Status = models.POStatusSentToSupplier
	t.writes++
	return nil
}

func (t *memoryTx) CreateShipment(_ context.Context, shipment *models.Shipment) error {
	shipment.ID = uuid.New()
	t.shipments = append(t.shipments, *shipment)
	t.writes++
	return nil
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, from, to models.OrderStatus) error {
	order, ok := t.currentOrder(orderID)
	if !ok {
		return pgx.ErrNoRows
	}
	if order.Status != from {
		return fmt.Errorf("order status is %q, not %q", order.Status, from)
	}
	order.Status = to
	t.orders[orderID] = order
	t.writes++
	return nil
}

func (t *memoryTx) UpdateOrderCompliance(_ context.Context, orderID uuid.UUID, info map[string]string) error {
	order, ok := t.currentOrder(orderID)
	if !ok {
		return pgx.ErrNoRows
	}
	order.ComplianceInfo = info
	t.orders[orderID] = order
	t.writes++
	return nil
}

type fakeDocuments struct {
	mu        sync.Mutex
	poErr     error
	slipErr   error
	purchase  []documents.PurchaseOrderInput
	packing   []documents.PackingSlipInput
	emptySlip bool
}

func (d *fakeDocuments) PurchaseOrderPDF(_ context.Context, in documents.PurchaseOrderInput) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.purchase = append(d.purchase, in)
	if d.poErr != nil {
		return nil, d.poErr
	}
	return []byte("%PDF po " + in.PONumber), nil
}

func (d *fakeDocuments) PackingSlipPDF(_ context.Context, in documents.PackingSlipInput) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packing = append(d.packing, in)
	if d.slipErr != nil {
		return nil, d.slipErr
	}
	if d.emptySlip {
		return nil, nil
	}
	return []byte("%PDF slip"), nil
}

func (d *fakeDocuments) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.purchase) + len(d.packing)
}

type fakeLabels struct {
	mu       sync.Mutex
	err      error
	requests []carrier.LabelRequest
}

func (l *fakeLabels) BookLabel(_ context.Context, req carrier.LabelRequest) (*carrier.Label, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	return &carrier.Label{
		TrackingNumber: fmt.Sprintf("1Z%03d", len(l.requests)),
		Carrier:        req.Carrier,
		PDF:            []byte("%PDF label"),
	}, nil
}

type fakeObjects struct {
	mu    sync.Mutex
	paths []string
}

func (o *fakeObjects) Put(_ context.Context, _ []byte, suggestedPath string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, suggestedPath)
	return "mem://" + suggestedPath, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	bundles []email.Bundle
	err     error
	// drop names an attachment the provider silently loses.
	drop string
}

func (n *fakeNotifier) SendDocumentBundle(_ context.Context, bundle email.Bundle) (*email.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.bundles = append(n.bundles, bundle)
	receipt := &email.Receipt{MessageID: fmt.Sprintf("msg-%d", len(n.bundles))}
	for _, attachment := range bundle.Attachments {
		if attachment.Filename == n.drop {
			continue
		}
		receipt.Attached = append(receipt.Attached, attachment.Filename)
	}
	return receipt, nil
}

func (n *fakeNotifier) sent() []email.Bundle {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]email.Bundle(nil), n.bundles...)
}

type fakeStorefront struct {
	mu        sync.Mutex
	shipments []storefront.Shipment
	statuses  []string
	err       error
}

func (s *fakeStorefront) RecordShipment(_ context.Context, _ string, shipment storefront.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.shipments = append(s.shipments, shipment)
	return nil
}

func (s *fakeStorefront) SetOrderStatus(_ context.Context, _ string, statusCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.statuses = append(s.statuses, statusCode)
	return nil
}

var errBoom = errors.New("boom")
