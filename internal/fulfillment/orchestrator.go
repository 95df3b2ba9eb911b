// Package fulfillment drives an order through its fulfillment assignments:
// purchase orders, packing slips, labels, supplier email and the order's
// final status, all inside one database transaction.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/dropship/internal/carrier"
	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/models"
	"github.com/gitshopapp/dropship/internal/notes"
	"github.com/gitshopapp/dropship/internal/observability"
	"github.com/gitshopapp/dropship/internal/storefront"
)

// InternalPONumber is reported for assignments that create no purchase order.
const InternalPONumber = "N/A"

const (
	stepRecordCompliance = "record_compliance"
	stepAllocatePONumber = "allocate_po_numbers"
)

type Dependencies struct {
	Store      Store
	Documents  DocumentGenerator
	Labels     LabelService
	Objects    ObjectStore
	Notifier   Notifier
	Storefront StorefrontSync
	Parts      PartResolver
	Services   ServiceCatalog
	Now        func() time.Time
}

type Orchestrator struct {
	store      Store
	documents  DocumentGenerator
	labels     LabelService
	objects    ObjectStore
	notifier   Notifier
	storefront StorefrontSync
	parts      PartResolver
	services   ServiceCatalog
	settings   Settings
	now        func() time.Time
	logger     *slog.Logger
}

func New(deps Dependencies, settings Settings, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("fulfillment store is required")
	case deps.Documents == nil:
		return nil, fmt.Errorf("document generator is required")
	case deps.Labels == nil:
		return nil, fmt.Errorf("label service is required")
	case deps.Objects == nil:
		return nil, fmt.Errorf("object store is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	}

	sync := deps.Storefront
	if sync == nil {
		sync = storefront.NewNoop(logger)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		store:      deps.Store,
		documents:  deps.Documents,
		labels:     deps.Labels,
		objects:    deps.Objects,
		notifier:   deps.Notifier,
		storefront: sync,
		parts:      deps.Parts,
		services:   deps.Services,
		settings:   settings.withDefaults(),
		now:        now,
		logger:     logger,
	}, nil
}

type AssignmentResult struct {
	Index                 int      `json:"index"`
	Target                string   `json:"target"`
	SupplierName          string   `json:"supplier_name,omitempty"`
	PONumber              string   `json:"po_number"`
	TrackingNumber        string   `json:"tracking_number,omitempty"`
	Carrier               string   `json:"carrier,omitempty"`
	MethodLabel           string   `json:"method_label,omitempty"`
	PurchaseOrderLocation string   `json:"purchase_order_location,omitempty"`
	PackingSlipLocation   string   `json:"packing_slip_location,omitempty"`
	LabelLocation         string   `json:"label_location,omitempty"`
	EmailMessageID        string   `json:"email_message_id,omitempty"`
	Warnings              []string `json:"warnings,omitempty"`
}

type Result struct {
	OrderID     uuid.UUID          `json:"order_id"`
	Status      models.OrderStatus `json:"status"`
	Partial     bool               `json:"partial"`
	Assignments []AssignmentResult `json:"assignments"`
	// Warnings lists storefront updates that failed after commit.
	Warnings []string `json:"warnings,omitempty"`
}

// run is the state one ProcessOrder call builds before its first write.
type run struct {
	order     *models.Order
	lineItems []models.OrderLineItem
	byID      map[uuid.UUID]models.OrderLineItem
	plans     []assignmentPlan
	suppliers int
	partial   bool
	poNumbers *poBlock
	now       time.Time
}

type assignmentPlan struct {
	index          int
	internal       *InternalFulfillmentAssignment
	supplier       *SupplierAssignment
	supplierRecord *models.Supplier
	shipFrom       models.Address
	blind          bool
	billing        carrier.Billing
	method         string
	carrier        string
	weight         decimal.Decimal
}

func (p assignmentPlan) wantsLabel() bool {
	return p.weight.IsPositive() && p.method != ""
}

func (p assignmentPlan) logoPath(settings Settings) string {
	if p.blind {
		return ""
	}
	return settings.LogoPath
}

func (p assignmentPlan) companyName(settings Settings) string {
	if p.blind {
		return ""
	}
	return settings.CompanyName
}

// storefrontCall is a storefront update deferred until after commit.
type storefrontCall struct {
	externalOrderID string
	shipment        *storefront.Shipment
	statusCode      string
}

func (o *Orchestrator) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, o.logger)
}

// ProcessOrder runs every assignment for the order in one transaction. On
// any error nothing the run wrote is committed; documents already uploaded
// or emailed by earlier assignments of the same call are not retracted.
func (o *Orchestrator) ProcessOrder(ctx context.Context, orderID uuid.UUID, assignments []Assignment) (*Result, error) {
	span := sentry.StartSpan(
		ctx,
		"service.fulfillment.process_order",
		sentry.WithOpName("service.fulfillment"),
		sentry.WithDescription("ProcessOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()
	span.SetData("order_id", orderID.String())
	span.SetData("assignments", len(assignments))

	started := time.Now()
	logger := o.loggerFromContext(ctx).With("order_id", orderID)
	meter := observability.MeterFromContext(ctx)
	meter.Count("fulfillment.run.received", 1)
	recordFailed := func(err error) {
		reason := failureReason(err)
		meter.Count("fulfillment.run.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrAlreadyFinalized), errors.Is(err, ErrAddressIncomplete):
			span.Status = sentry.SpanStatusFailedPrecondition
			logger.Warn("fulfillment run rejected", "error", err, "reason", reason)
		default:
			span.Status = sentry.SpanStatusInternalError
			logger.Error("fulfillment run failed", "error", err, "reason", reason)
		}
	}

	if orderID == uuid.Nil {
		err := fmt.Errorf("%w: order id is required", ErrInvalidInput)
		recordFailed(err)
		return nil, err
	}
	if err := validateAssignments(assignments); err != nil {
		recordFailed(err)
		return nil, err
	}

	var (
		result *Result
		syncs  []storefrontCall
	)
	err := o.store.InTx(ctx, func(tx Tx) error {
		r, err := o.plan(ctx, tx, orderID, assignments)
		if err != nil {
			return err
		}
		result, syncs, err = o.execute(ctx, tx, r)
		return err
	})
	if err != nil {
		if !classified(err) {
			err = fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		recordFailed(err)
		return nil, err
	}

	result.Warnings = o.syncStorefront(ctx, syncs)

	span.Status = sentry.SpanStatusOK
	meter.Count("fulfillment.run.succeeded", 1, sentry.WithAttributes(
		attribute.String("status", string(result.Status)),
	))
	observability.RecordDuration(ctx, "fulfillment.run.duration", started)
	logger.Info("fulfillment run committed",
		"status", result.Status,
		"assignments", len(result.Assignments),
		"partial", result.Partial,
	)
	return result, nil
}

// plan loads and checks everything the run needs. Apart from compliance
// info parsed from the notes, it writes nothing.
func (o *Orchestrator) plan(ctx context.Context, tx Tx, orderID uuid.UUID, assignments []Assignment) (*run, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("%w: load order: %w", ErrPersistenceFailed, err)
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %q", ErrAlreadyFinalized, orderID, order.Status)
	}

	lineItems, err := tx.ListOrderLineItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: load line items: %w", ErrPersistenceFailed, err)
	}
	r := &run{
		order:     order,
		lineItems: lineItems,
		byID:      make(map[uuid.UUID]models.OrderLineItem, len(lineItems)),
		now:       o.now().UTC(),
	}
	for _, item := range lineItems {
		r.byID[item.ID] = item
	}

	suppliers := make(map[uuid.UUID]*models.Supplier)
	for i, assignment := range assignments {
		for _, id := range assignment.lineItemIDs() {
			if _, ok := r.byID[id]; !ok {
				return nil, fmt.Errorf("%w: assignment %d: line item %s does not belong to order %s", ErrInvalidInput, i+1, id, orderID)
			}
		}

		plan := assignmentPlan{index: i}
		switch a := assignment.(type) {
		case SupplierAssignment:
			supplier, ok := suppliers[a.SupplierID]
			if !ok {
				supplier, err = tx.GetSupplier(ctx, a.SupplierID)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, fmt.Errorf("%w: %s", ErrSupplierNotFound, a.SupplierID)
					}
					return nil, fmt.Errorf("%w: load supplier: %w", ErrPersistenceFailed, err)
				}
				if supplier.Email == "" {
					return nil, fmt.Errorf("%w: supplier %s has no email address", ErrInvalidInput, supplier.Name)
				}
				suppliers[a.SupplierID] = supplier
			}
			plan.supplier = &a
			plan.supplierRecord = supplier
			r.suppliers++
		case InternalFulfillmentAssignment:
			plan.internal = &a
		}

		options := assignment.shipment()
		plan.blind = options.BlindShip
		plan.weight = options.WeightLbs
		if plan.blind {
			plan.shipFrom, err = blindShipFrom(order)
			if err != nil {
				return nil, fmt.Errorf("assignment %d: %w", i+1, err)
			}
		} else {
			plan.shipFrom = o.settings.ShipFrom
		}
		plan.billing, err = carrierBilling(order, options.Billing)
		if err != nil {
			return nil, fmt.Errorf("assignment %d: %w", i+1, err)
		}
		plan.method = methodLabel(order, options)
		plan.carrier = carrier.DisplayName(options.Carrier)
		if plan.carrier == "" && o.services != nil && plan.method != "" {
			if service, ok := o.services.Lookup(plan.method); ok {
				plan.carrier = service.Carrier
			}
		}
		r.plans = append(r.plans, plan)
	}
	r.partial = r.suppliers > 1

	if len(order.ComplianceInfo) == 0 {
		if parsed := notes.ParseCompliance(order.CustomerNotes); len(parsed) > 0 {
			if err := tx.UpdateOrderCompliance(ctx, order.ID, parsed); err != nil {
				return nil, stepFailed(-1, stepRecordCompliance, "", ErrPersistenceFailed, err)
			}
			order.ComplianceInfo = parsed
		}
	}

	numbers, err := NextPOBlock(ctx, tx, r.suppliers, o.settings.POFloor)
	if err != nil {
		return nil, stepFailed(-1, stepAllocatePONumber, "", ErrPersistenceFailed, err)
	}
	r.poNumbers = &poBlock{numbers: numbers}
	return r, nil
}

func (o *Orchestrator) execute(ctx context.Context, tx Tx, r *run) (*Result, []storefrontCall, error) {
	result := &Result{
		OrderID:     r.order.ID,
		Status:      r.order.Status,
		Partial:     r.partial,
		Assignments: make([]AssignmentResult, 0, len(r.plans)),
	}
	var syncs []storefrontCall
	covered := make(map[uuid.UUID]bool, len(r.lineItems))
	supplierTracking := false

	for _, plan := range r.plans {
		var (
			out  *AssignmentResult
			call *storefrontCall
			err  error
		)
		if plan.supplier != nil {
			out, call, err = o.fulfillFromSupplier(ctx, tx, r, plan)
			if err == nil && out.TrackingNumber != "" {
				supplierTracking = true
			}
			for _, id := range plan.supplier.lineItemIDs() {
				covered[id] = true
			}
		} else {
			out, call, err = o.fulfillInternally(ctx, tx, r, plan)
			for _, id := range plan.internal.LineItemIDs {
				covered[id] = true
			}
		}
		if err != nil {
			return nil, nil, err
		}
		result.Assignments = append(result.Assignments, *out)
		if call != nil {
			syncs = append(syncs, *call)
		}
	}

	next := r.order.Status
	switch {
	case r.suppliers == 0:
		next = models.StatusCompletedOffline
	case allCovered(r.lineItems, covered):
		next = models.StatusProcessed
	}
	if next != r.order.Status {
		if err := tx.UpdateOrderStatus(ctx, r.order.ID, r.order.Status, next); err != nil {
			return nil, nil, stepFailed(-1, StepUpdateStatus, "", ErrPersistenceFailed, err)
		}
		result.Status = next
	}
	if next == models.StatusProcessed && supplierTracking {
		syncs = append(syncs, storefrontCall{
			externalOrderID: r.order.ExternalID,
			statusCode:      o.settings.ShippedStatusCode,
		})
	}
	return result, syncs, nil
}

func allCovered(items []models.OrderLineItem, covered map[uuid.UUID]bool) bool {
	for _, item := range items {
		if !covered[item.ID] {
			return false
		}
	}
	return true
}

// syncStorefront delivers deferred storefront updates. Failures are logged
// and returned as warnings; local state is already committed.
func (o *Orchestrator) syncStorefront(ctx context.Context, calls []storefrontCall) []string {
	logger := o.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	var warnings []string
	for _, call := range calls {
		if call.externalOrderID == "" {
			continue
		}
		var (
			err       error
			operation string
		)
		if call.shipment != nil {
			operation = "record_shipment"
			err = o.storefront.RecordShipment(ctx, call.externalOrderID, *call.shipment)
		} else {
			operation = "set_order_status"
			err = o.storefront.SetOrderStatus(ctx, call.externalOrderID, call.statusCode)
		}
		if err != nil {
			meter.Count("fulfillment.storefront.failed", 1, sentry.WithAttributes(
				attribute.String("operation", operation),
			))
			logger.Warn("storefront update failed", "error", err, "operation", operation, "external_order_id", call.externalOrderID)
			warnings = append(warnings, fmt.Sprintf("storefront %s failed: %v", operation, err))
		}
	}
	return warnings
}
