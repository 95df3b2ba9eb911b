package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/secrets"
)

// poSequenceLockKey serializes PO number allocation across concurrent runs.
const poSequenceLockKey int64 = 0x64726f7073686970

var ErrInvalidStatusTransition = errors.New("invalid order status transition")

type FulfillmentStore struct {
	pool   *pgxpool.Pool
	sealer secrets.Sealer
}

func NewFulfillmentStore(pool *pgxpool.Pool, sealer secrets.Sealer) (*FulfillmentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("sealer is required")
	}
	return &FulfillmentStore{pool: pool, sealer: sealer}, nil
}

// fulfillmentTxOptions uses read committed so every statement takes a fresh
// snapshot: a run that waited on the PO sequence lock reads the numbers the
// previous holder committed. The order row is guarded by FOR UPDATE.
var fulfillmentTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// InTx runs fn inside one transaction. The transaction commits only when fn
// returns nil.
func (s *FulfillmentStore) InTx(ctx context.Context, fn func(tx *FulfillmentTx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, fulfillmentTxOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&FulfillmentTx{tx: tx, sealer: s.sealer}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type FulfillmentTx struct {
	tx     pgx.Tx
	sealer secrets.Sealer
}

// GetOrderForUpdate locks the order row for the rest of the transaction.
func (t *FulfillmentTx) GetOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `
		SELECT id, external_id, customer_email, billing_address, shipping_address, shipping_method,
		       customer_carrier_service, carrier_account_number_sealed, carrier_account_zip,
		       payment_method, customer_notes, compliance_info, status, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`
	var (
		row           Order
		billingJSON   []byte
		shippingJSON  []byte
		complianceRaw []byte
		sealedAccount string
		status        string
		createdAt     pgtype.Timestamptz
		updatedAt     pgtype.Timestamptz
	)
	err := t.tx.QueryRow(ctx, query, orderID).Scan(
		&row.ID,
		&row.ExternalID,
		&row.CustomerEmail,
		&billingJSON,
		&shippingJSON,
		&row.ShippingMethod,
		&row.CustomerCarrierService,
		&sealedAccount,
		&row.CarrierAccountZip,
		&row.PaymentMethod,
		&row.CustomerNotes,
		&complianceRaw,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	row.Status = OrderStatus(status)
	row.CreatedAt = createdAt.Time
	row.UpdatedAt = updatedAt.Time
	if err := unmarshalJSONColumn(billingJSON, &row.BillingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode billing address: %w", err)
	}
	if err := unmarshalJSONColumn(shippingJSON, &row.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	if err := unmarshalJSONColumn(complianceRaw, &row.ComplianceInfo); err != nil {
		return nil, fmt.Errorf("failed to decode compliance info: %w", err)
	}
	account, err := t.sealer.Open(row.ID.String(), sealedAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to open carrier account number: %w", err)
	}
	row.CarrierAccountNumber = account

	return &row, nil
}

func (t *FulfillmentTx) ListOrderLineItems(ctx context.Context, orderID uuid.UUID) ([]OrderLineItem, error) {
	query := `
		SELECT id, order_id, external_id, sku, name, quantity, unit_price
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY external_id, id
	`
	rows, err := t.tx.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderLineItem
	for rows.Next() {
		var (
			item     OrderLineItem
			quantity int32
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ExternalID, &item.SKU, &item.Name, &quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		item.Quantity = int(quantity)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *FulfillmentTx) GetSupplier(ctx context.Context, supplierID uuid.UUID) (*Supplier, error) {
	query := `SELECT id, name, email, address, payment_terms FROM suppliers WHERE id = $1`
	var (
		supplier    Supplier
		addressJSON []byte
	)
	if err := t.tx.QueryRow(ctx, query, supplierID).Scan(&supplier.ID, &supplier.Name, &supplier.Email, &addressJSON, &supplier.PaymentTerms); err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumn(addressJSON, &supplier.Address); err != nil {
		return nil, fmt.Errorf("failed to decode supplier address: %w", err)
	}
	return &supplier, nil
}

// MaxPONumber returns the highest numeric PO number issued so far. The advisory
// lock, held until the transaction ends, queues competing runs here; the MAX
// query runs after the lock is granted, so it sees the previous holder's
// inserts. The unique po_number constraint remains the backstop.
func (t *FulfillmentTx) MaxPONumber(ctx context.Context) (int64, bool, error) {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", poSequenceLockKey); err != nil {
		return 0, false, fmt.Errorf("failed to lock po sequence: %w", err)
	}

	var highest pgtype.Int8
	query := `SELECT MAX(po_number::bigint) FROM purchase_orders WHERE po_number ~ '^[0-9]+$'`
	if err := t.tx.QueryRow(ctx, query).Scan(&highest); err != nil {
		return 0, false, err
	}
	return highest.Int64, highest.Valid, nil
}

// CreatePurchaseOrder inserts the PO and its line items, filling in generated ids.
func (t *FulfillmentTx) CreatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error {
	if po == nil {
		return fmt.Errorf("purchase order is required")
	}
	query := `
		INSERT INTO purchase_orders (po_number, order_id, supplier_id, issue_date, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	var createdAt pgtype.Timestamptz
	issueDate := pgtype.Date{Time: po.IssueDate, Valid: true}
	if err := t.tx.QueryRow(ctx, query, po.PONumber, po.OrderID, po.SupplierID, issueDate, po.TotalAmount, string(po.Status)).Scan(&po.ID, &createdAt); err != nil {
		return err
	}
	po.CreatedAt = createdAt.Time

	lineQuery := `
		INSERT INTO po_line_items (purchase_order_id, order_line_item_id, sku, description, quantity, unit_cost, condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	for i := range po.LineItems {
		item := &po.LineItems[i]
		quantity, err := intToInt32(item.Quantity, "po line item quantity")
		if err != nil {
			return err
		}
		item.PurchaseOrderID = po.ID
		if err := t.tx.QueryRow(ctx, lineQuery, po.ID, item.OrderLineItemID, item.SKU, item.Description, quantity, item.UnitCost, item.Condition).Scan(&item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *FulfillmentTx) UpdatePurchaseOrderDocuments(ctx context.Context, poID uuid.UUID, documentLocation, packingSlipLocation string) error {
	query := `
		UPDATE purchase_orders
		SET document_location = $1, packing_slip_location = $2
		WHERE id = $3
	`
	cmdTag, err := t.tx.Exec(ctx, query, documentLocation, packingSlipLocation, poID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (t *FulfillmentTx) MarkPurchaseOrderSent(ctx context.Context, poID uuid.UUID) error {
	query := `
		UPDATE purchase_orders
		SET status = $1
		WHERE id = $2 AND status = $3
	`
	cmdTag, err := t.tx.Exec(ctx, query, string(models.POStatusSentToSupplier), poID, string(models.POStatusNew))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected purchase order in New", ErrInvalidStatusTransition)
	}
	return nil
}

func (t *FulfillmentTx) CreateShipment(ctx context.Context, shipment *Shipment) error {
	if shipment == nil {
		return fmt.Errorf("shipment is required")
	}
	query := `
		INSERT INTO shipments (order_id, purchase_order_id, tracking_number, carrier, method_label, weight_lbs, label_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	var (
		createdAt pgtype.Timestamptz
		poID      pgtype.UUID
	)
	if shipment.PurchaseOrderID != nil {
		poID = pgtype.UUID{Bytes: *shipment.PurchaseOrderID, Valid: true}
	}
	err := t.tx.QueryRow(ctx, query,
		shipment.OrderID,
		poID,
		shipment.TrackingNumber,
		shipment.Carrier,
		shipment.MethodLabel,
		shipment.WeightLbs,
		shipment.LabelLocation,
	).Scan(&shipment.ID, &createdAt)
	if err != nil {
		return err
	}
	shipment.CreatedAt = createdAt.Time
	return nil
}

// UpdateOrderStatus moves the order from one status to another, failing if the
// row is no longer in the expected status.
func (t *FulfillmentTx) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	cmdTag, err := t.tx.Exec(ctx, query, string(to), orderID, string(from))
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, from)
	}
	return nil
}

func (t *FulfillmentTx) UpdateOrderCompliance(ctx context.Context, orderID uuid.UUID, info map[string]string) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	cmdTag, err := t.tx.Exec(ctx, `UPDATE orders SET compliance_info = $1, updated_at = NOW() WHERE id = $2`, payload, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func unmarshalJSONColumn(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func intToInt32(value int, name string) (int32, error) {
	if value < math.MinInt32 || value > math.MaxInt32 {
		return 0, fmt.Errorf("%s out of int32 range: %d", name, value)
	}
	return int32(value), nil
}
