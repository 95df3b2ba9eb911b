package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/dropship/internal/fulfillment"
	"github.com/gitshopapp/dropship/internal/idempotency"
	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/observability"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 200
)

type errorResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	Assignment *int   `json:"assignment,omitempty"`
	Step       string `json:"step,omitempty"`
	PONumber   string `json:"po_number,omitempty"`
}

// FulfillOrder runs the posted assignments for one order.
func (h *Handlers) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meter := observability.MeterFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return
	}
	ctx = logging.With(ctx, h.logger, "order_id", orderID)
	logger := h.loggerFromContext(ctx)

	var req fulfillment.ProcessRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFulfillBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		logger.Warn("invalid fulfillment payload", "error", err)
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	assignments, err := fulfillment.ParseAssignments(req)
	if err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: "invalid_input"})
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "idempotency key is too long"})
		return
	}
	if key != "" {
		key = orderID.String() + ":" + key
		ctx = logging.With(ctx, h.logger, "idempotency_key", key)
		logger = h.loggerFromContext(ctx)

		record, created, err := h.idempotency.Begin(ctx, key)
		if err != nil {
			logger.Error("failed to reserve idempotency key", "error", err)
			writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "failed to reserve idempotency key"})
			return
		}
		if !created {
			// A nil record means the claim was released between our attempt
			// and the read; the caller can simply retry.
			if record != nil && record.Status == idempotency.StatusDone {
				meter.Count("fulfillment.idempotency.replayed", 1)
				logger.Info("replaying stored fulfillment response")
				w.Header().Set(replayedHeader, "true")
				writeRaw(w, record.ResponseStatus, []byte(record.ResponseBody))
				return
			}
			meter.Count("fulfillment.idempotency.conflict", 1)
			writeJSON(ctx, w, http.StatusConflict, errorResponse{Error: "a request with this idempotency key is in progress"})
			return
		}
	}

	result, err := h.fulfiller.ProcessOrder(ctx, orderID, assignments)
	if err != nil {
		if key != "" {
			if releaseErr := h.idempotency.Release(ctx, key); releaseErr != nil {
				logger.Error("failed to release idempotency key", "error", releaseErr)
			}
		}
		status, body := fulfillmentError(err)
		meter.Count("fulfillment.http.failed", 1, sentry.WithAttributes(
			attribute.String("reason", body.Reason),
			attribute.Int("http.status_code", status),
		))
		if status >= http.StatusInternalServerError {
			logger.Error("fulfillment request failed", "error", err, "status", status)
		} else {
			logger.Warn("fulfillment request rejected", "error", err, "status", status)
		}
		writeJSON(ctx, w, status, body)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.Error("failed to encode fulfillment result", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if key != "" {
		// The run is committed; a lost response record only costs a 409 on replay.
		if err := h.idempotency.Complete(ctx, key, http.StatusOK, payload); err != nil {
			logger.Error("failed to store idempotent response", "error", err)
		}
	}
	writeRaw(w, http.StatusOK, payload)
}

// fulfillmentError maps the orchestrator's error classes to HTTP responses.
func fulfillmentError(err error) (int, errorResponse) {
	body := errorResponse{Error: err.Error()}

	var stepErr *fulfillment.StepError
	if errors.As(err, &stepErr) {
		body.Step = stepErr.Step
		body.PONumber = stepErr.PONumber
		if stepErr.Assignment >= 0 {
			index := stepErr.Assignment
			body.Assignment = &index
		}
	}

	switch {
	case errors.Is(err, fulfillment.ErrNotFound):
		body.Reason = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, fulfillment.ErrInvalidInput):
		body.Reason = "invalid_input"
		return http.StatusBadRequest, body
	case errors.Is(err, fulfillment.ErrAlreadyFinalized):
		body.Reason = "already_finalized"
		return http.StatusConflict, body
	case errors.Is(err, fulfillment.ErrAddressIncomplete):
		body.Reason = "address_incomplete"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, fulfillment.ErrCarrierBookingFailed):
		body.Reason = "carrier_booking_failed"
		return http.StatusBadGateway, body
	case errors.Is(err, fulfillment.ErrDocumentGenerationFailed):
		body.Reason = "document_generation_failed"
		return http.StatusBadGateway, body
	case errors.Is(err, fulfillment.ErrEmailIncomplete):
		body.Reason = "email_incomplete"
		return http.StatusBadGateway, body
	default:
		body.Reason = "persistence_failed"
		body.Error = "failed to record fulfillment"
		return http.StatusInternalServerError, body
	}
}
