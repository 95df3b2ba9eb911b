package fulfillment

import (
	"errors"
	"fmt"
)

// Error classes. Every error ProcessOrder returns matches exactly one of
// these with errors.Is.
var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrAlreadyFinalized         = errors.New("order already finalized")
	ErrAddressIncomplete        = errors.New("address incomplete")
	ErrDocumentGenerationFailed = errors.New("document generation failed")
	ErrCarrierBookingFailed     = errors.New("carrier booking failed")
	ErrEmailIncomplete          = errors.New("email incomplete")
	ErrPersistenceFailed        = errors.New("persistence failed")
)

var (
	ErrOrderNotFound              = fmt.Errorf("order %w", ErrNotFound)
	ErrSupplierNotFound           = fmt.Errorf("supplier %w", ErrNotFound)
	ErrIncompleteBlindShipAddress = fmt.Errorf("%w: billing address cannot be used as a blind ship-from address", ErrAddressIncomplete)
	ErrNoThirdPartyBillingZip     = fmt.Errorf("%w: no postal code for third-party carrier billing", ErrAddressIncomplete)
)

// Step names reported in StepError.
const (
	StepInsertPurchaseOrder   = "insert_purchase_order"
	StepPurchaseOrderDocument = "purchase_order_document"
	StepPackingSlip           = "packing_slip"
	StepBookLabel             = "book_label"
	StepUpload                = "upload_documents"
	StepRecordDocuments       = "record_documents"
	StepRecordShipment        = "record_shipment"
	StepSendEmail             = "send_email"
	StepMarkSent              = "mark_sent"
	StepUpdateStatus          = "update_order_status"
)

// StepError reports the assignment and step a run failed at. PONumber is
// the number that was in flight; it was never committed and a retry
// allocates a fresh one.
type StepError struct {
	Assignment int
	Step       string
	PONumber   string
	Err        error
}

func (e *StepError) Error() string {
	if e.PONumber != "" {
		return fmt.Sprintf("assignment %d (PO %s): %s: %v", e.Assignment+1, e.PONumber, e.Step, e.Err)
	}
	if e.Assignment < 0 {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("assignment %d: %s: %v", e.Assignment+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepFailed(index int, step, poNumber string, class, err error) *StepError {
	return &StepError{
		Assignment: index,
		Step:       step,
		PONumber:   poNumber,
		Err:        fmt.Errorf("%w: %w", class, err),
	}
}

// failureReason names the error class for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, ErrAddressIncomplete):
		return "address_incomplete"
	case errors.Is(err, ErrDocumentGenerationFailed):
		return "document_generation_failed"
	case errors.Is(err, ErrEmailIncomplete):
		return "email_incomplete"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	default:
		return "unknown"
	}
}

func classified(err error) bool {
	return failureReason(err) != "unknown"
}
