package fulfillment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TargetInternal is the request target naming the seller's own warehouse.
const TargetInternal = "internal"

// Assignment is either an InternalFulfillmentAssignment or a SupplierAssignment.
type Assignment interface {
	lineItemIDs() []uuid.UUID
	shipment() ShipmentOptions
	isAssignment()
}

// CarrierBilling selects who pays postage. With BillToCustomer the label is
// charged to the customer's carrier account; empty fields fall back to the
// account on file for the order.
type CarrierBilling struct {
	BillToCustomer bool
	AccountNumber  string
	AccountZip     string
}

// ShipmentOptions describe the parcel. A zero weight or an unresolvable
// shipping method means no label is booked.
type ShipmentOptions struct {
	WeightLbs   decimal.Decimal
	MethodLabel string
	Carrier     string
	Billing     CarrierBilling
	BlindShip   bool
}

type InternalFulfillmentAssignment struct {
	LineItemIDs []uuid.UUID
	Shipment    ShipmentOptions
}

func (a InternalFulfillmentAssignment) lineItemIDs() []uuid.UUID  { return a.LineItemIDs }
func (a InternalFulfillmentAssignment) shipment() ShipmentOptions { return a.Shipment }
func (InternalFulfillmentAssignment) isAssignment()               {}

type SupplierItem struct {
	LineItemID uuid.UUID
	SKU        string
	Quantity   int
	UnitCost   decimal.Decimal
	// Condition defaults to "New".
	Condition string
}

type SupplierAssignment struct {
	SupplierID          uuid.UUID
	Items               []SupplierItem
	PaymentInstructions string
	Shipment            ShipmentOptions
}

func (a SupplierAssignment) lineItemIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(a.Items))
	for _, item := range a.Items {
		ids = append(ids, item.LineItemID)
	}
	return ids
}

func (a SupplierAssignment) shipment() ShipmentOptions { return a.Shipment }
func (SupplierAssignment) isAssignment()               {}

// ProcessRequest is the JSON body of a fulfillment request.
type ProcessRequest struct {
	Assignments []AssignmentRequest `json:"assignments" validate:"required,min=1,dive"`
}

type AssignmentRequest struct {
	// Target is "internal" or a supplier id.
	Target               string            `json:"target" validate:"required"`
	LineItems            []LineItemRequest `json:"line_items" validate:"dive"`
	WeightLbs            decimal.Decimal   `json:"weight_lbs"`
	ShippingMethod       string            `json:"shipping_method" validate:"max=120"`
	Carrier              string            `json:"carrier" validate:"max=60"`
	BillTo               string            `json:"bill_to" validate:"omitempty,oneof=sender customer"`
	CarrierAccountNumber string            `json:"carrier_account_number" validate:"max=64"`
	CarrierAccountZip    string            `json:"carrier_account_zip" validate:"max=20"`
	BlindShip            bool              `json:"blind_ship"`
	PaymentInstructions  string            `json:"payment_instructions" validate:"max=2000"`
}

type LineItemRequest struct {
	LineItemID string           `json:"line_item_id" validate:"required,uuid"`
	SKU        string           `json:"sku" validate:"max=120"`
	Quantity   int              `json:"quantity" validate:"gte=0"`
	UnitCost   *decimal.Decimal `json:"unit_cost"`
	Condition  string           `json:"condition" validate:"max=40"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseAssignments validates a request and converts it into assignments.
// Cross-assignment rules are checked again by ProcessOrder.
func ParseAssignments(req ProcessRequest) ([]Assignment, error) {
	if err := requestValidator.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
			first := validationErrs[0]
			return nil, fmt.Errorf("%w: %s failed %q validation", ErrInvalidInput, first.Namespace(), first.Tag())
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	assignments := make([]Assignment, 0, len(req.Assignments))
	for i, in := range req.Assignments {
		if in.WeightLbs.IsNegative() {
			return nil, fmt.Errorf("%w: assignment %d: weight must not be negative", ErrInvalidInput, i+1)
		}
		options := ShipmentOptions{
			WeightLbs:   in.WeightLbs,
			MethodLabel: strings.TrimSpace(in.ShippingMethod),
			Carrier:     strings.TrimSpace(in.Carrier),
			Billing: CarrierBilling{
				BillToCustomer: in.BillTo == "customer",
				AccountNumber:  strings.TrimSpace(in.CarrierAccountNumber),
				AccountZip:     strings.TrimSpace(in.CarrierAccountZip),
			},
			BlindShip: in.BlindShip,
		}

		if strings.EqualFold(strings.TrimSpace(in.Target), TargetInternal) {
			ids := make([]uuid.UUID, 0, len(in.LineItems))
			for _, item := range in.LineItems {
				ids = append(ids, uuid.MustParse(item.LineItemID))
			}
			assignments = append(assignments, InternalFulfillmentAssignment{LineItemIDs: ids, Shipment: options})
			continue
		}

		supplierID, err := uuid.Parse(strings.TrimSpace(in.Target))
		if err != nil {
			return nil, fmt.Errorf("%w: assignment %d: target must be %q or a supplier id", ErrInvalidInput, i+1, TargetInternal)
		}
		items := make([]SupplierItem, 0, len(in.LineItems))
		for _, item := range in.LineItems {
			supplierItem := SupplierItem{
				LineItemID: uuid.MustParse(item.LineItemID),
				SKU:        strings.TrimSpace(item.SKU),
				Quantity:   item.Quantity,
				Condition:  strings.TrimSpace(item.Condition),
			}
			if item.UnitCost == nil {
				return nil, fmt.Errorf("%w: assignment %d: unit_cost is required for supplier items", ErrInvalidInput, i+1)
			}
			supplierItem.UnitCost = *item.UnitCost
			items = append(items, supplierItem)
		}
		assignments = append(assignments, SupplierAssignment{
			SupplierID:          supplierID,
			Items:               items,
			PaymentInstructions: strings.TrimSpace(in.PaymentInstructions),
			Shipment:            options,
		})
	}
	return assignments, nil
}

// validateAssignments enforces the rules that need no database access.
func validateAssignments(assignments []Assignment) error {
	if len(assignments) == 0 {
		return fmt.Errorf("%w: at least one assignment is required", ErrInvalidInput)
	}

	seen := make(map[uuid.UUID]int)
	for i, assignment := range assignments {
		if assignment == nil {
			return fmt.Errorf("%w: assignment %d is empty", ErrInvalidInput, i+1)
		}
		options := assignment.shipment()
		if options.WeightLbs.IsNegative() {
			return fmt.Errorf("%w: assignment %d: weight must not be negative", ErrInvalidInput, i+1)
		}

		switch a := assignment.(type) {
		case SupplierAssignment:
			if a.SupplierID == uuid.Nil {
				return fmt.Errorf("%w: assignment %d: supplier id is required", ErrInvalidInput, i+1)
			}
			if len(a.Items) == 0 {
				return fmt.Errorf("%w: assignment %d: supplier assignments need at least one line item", ErrInvalidInput, i+1)
			}
			for _, item := range a.Items {
				if strings.TrimSpace(item.SKU) == "" {
					return fmt.Errorf("%w: assignment %d: line item %s has no sku", ErrInvalidInput, i+1, item.LineItemID)
				}
				if item.Quantity <= 0 {
					return fmt.Errorf("%w: assignment %d: line item %s quantity must be positive", ErrInvalidInput, i+1, item.LineItemID)
				}
				if item.UnitCost.IsNegative() {
					return fmt.Errorf("%w: assignment %d: line item %s unit cost must not be negative", ErrInvalidInput, i+1, item.LineItemID)
				}
			}
		case InternalFulfillmentAssignment:
		default:
			return fmt.Errorf("%w: assignment %d has unknown type %T", ErrInvalidInput, i+1, assignment)
		}

		for _, id := range assignment.lineItemIDs() {
			if id == uuid.Nil {
				return fmt.Errorf("%w: assignment %d: line item id is required", ErrInvalidInput, i+1)
			}
			if previous, ok := seen[id]; ok {
				return fmt.Errorf("%w: line item %s is in assignments %d and %d", ErrInvalidInput, id, previous+1, i+1)
			}
			seen[id] = i
		}
	}
	return nil
}
