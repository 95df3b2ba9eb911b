package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/dropship/internal/cache"
	"github.com/gitshopapp/dropship/internal/fulfillment"
	"github.com/gitshopapp/dropship/internal/idempotency"
	"github.com/gitshopapp/dropship/internal/models"
)

type fakeFulfiller struct {
	mu      sync.Mutex
	calls   int
	got     []fulfillment.Assignment
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeFulfiller) ProcessOrder(_ context.Context, orderID uuid.UUID, assignments []fulfillment.Assignment) (*fulfillment.Result, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = assignments
	if f.err != nil {
		return nil, f.err
	}
	return &fulfillment.Result{
		OrderID: orderID,
		Status:  models.StatusProcessed,
		Assignments: []fulfillment.AssignmentResult{{
			Target:   fulfillment.TargetInternal,
			PONumber: fulfillment.InternalPONumber,
		}},
	}, nil
}

func (f *fakeFulfiller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, fulfiller Fulfiller, pinger Pinger) (*mux.Router, string) {
	t.Helper()

	provider, err := cache.NewMemoryProvider(128)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}
	verifier := newTestVerifier(t)
	h, err := New(Dependencies{
		DB:          pinger,
		Fulfiller:   fulfiller,
		Idempotency: idempotency.NewCacheStore(provider, time.Hour),
		Tokens:      verifier,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	token, err := verifier.Issue("ops@partsdepot.example", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return Router(h), token
}

func fulfillRequest(orderID, token, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID+"/fulfill", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	return req
}

func internalBody() string {
	return fmt.Sprintf(`{"assignments":[{"target":"internal","line_items":[{"line_item_id":%q}]}]}`, uuid.NewString())
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Dependencies{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestFulfillOrder_Success(t *testing.T) {
	t.Parallel()

	fulfiller := &fakeFulfiller{}
	router, token := newTestRouter(t, fulfiller, stubPinger{})
	orderID := uuid.NewString()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, fulfillRequest(orderID, token, "", internalBody()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result fulfillment.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.OrderID.String() != orderID || result.Status != models.StatusProcessed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fulfiller.got) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(fulfiller.got))
	}
	if _, ok := fulfiller.got[0].(fulfillment.InternalFulfillmentAssignment); !ok {
		t.Fatalf("expected internal assignment, got %T", fulfiller.got[0])
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected security headers, got %v", rec.Header())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestFulfillOrder_RejectsBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		orderID    string
		body       string
		token      bool
		wantStatus int
	}{
		{name: "no token", orderID: uuid.NewString(), body: internalBody(), wantStatus: http.StatusUnauthorized},
		{name: "bad order id", orderID: "not-a-uuid", body: internalBody(), token: true, wantStatus: http.StatusBadRequest},
		{name: "bad json", orderID: uuid.NewString(), body: "{", token: true, wantStatus: http.StatusBadRequest},
		{name: "unknown field", orderID: uuid.NewString(), body: `{"assignments":[],"rush":true}`, token: true, wantStatus: http.StatusBadRequest},
		{name: "no assignments", orderID: uuid.NewString(), body: `{"assignments":[]}`, token: true, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fulfiller := &fakeFulfiller{}
			router, token := newTestRouter(t, fulfiller, stubPinger{})
			if !tt.token {
				token = ""
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, fulfillRequest(tt.orderID, token, "", tt.body))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if fulfiller.callCount() != 0 {
				t.Fatalf("expected orchestrator not to run")
			}
		})
	}
}

func TestFulfillOrder_MapsErrorClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "not found", err: fulfillment.ErrOrderNotFound, wantStatus: http.StatusNotFound, wantReason: "not_found"},
		{name: "invalid", err: fmt.Errorf("%w: bad", fulfillment.ErrInvalidInput), wantStatus: http.StatusBadRequest, wantReason: "invalid_input"},
		{name: "finalized", err: fulfillment.ErrAlreadyFinalized, wantStatus: http.StatusConflict, wantReason: "already_finalized"},
		{name: "address", err: fulfillment.ErrIncompleteBlindShipAddress, wantStatus: http.StatusUnprocessableEntity, wantReason: "address_incomplete"},
		{
			name: "label",
			err: &fulfillment.StepError{
				Assignment: 0,
				Step:       fulfillment.StepBookLabel,
				PONumber:   "200001",
				Err:        fmt.Errorf("%w: %w", fulfillment.ErrDocumentGenerationFailed, fulfillment.ErrCarrierBookingFailed),
			},
			wantStatus: http.StatusBadGateway,
			wantReason: "carrier_booking_failed",
		},
		{name: "email", err: fulfillment.ErrEmailIncomplete, wantStatus: http.StatusBadGateway, wantReason: "email_incomplete"},
		{name: "persistence", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantReason: "persistence_failed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, token := newTestRouter(t, &fakeFulfiller{err: tt.err}, stubPinger{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, fulfillRequest(uuid.NewString(), token, "", internalBody()))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Reason != tt.wantReason {
				t.Fatalf("expected reason %q, got %q", tt.wantReason, body.Reason)
			}
		})
	}
}

func TestFulfillOrder_StepErrorDetails(t *testing.T) {
	t.Parallel()

	status, body := fulfillmentError(&fulfillment.StepError{
		Assignment: 1,
		Step:       fulfillment.StepSendEmail,
		PONumber:   "200002",
		Err:        fmt.Errorf("%w: bounced", fulfillment.ErrEmailIncomplete),
	})
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if body.Assignment == nil || *body.Assignment != 1 || body.Step != fulfillment.StepSendEmail || body.PONumber != "200002" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestFulfillOrder_IdempotentReplay(t *testing.T) {
	t.Parallel()

	fulfiller := &fakeFulfiller{}
	router, token := newTestRouter(t, fulfiller, stubPinger{})
	orderID := uuid.NewString()
	body := internalBody()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, fulfillRequest(orderID, token, "req-1", body))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, fulfillRequest(orderID, token, "req-1", body))

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both 200, got %d and %d", first.Code, second.Code)
	}
	if fulfiller.callCount() != 1 {
		t.Fatalf("expected one orchestrator run, got %d", fulfiller.callCount())
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}

func TestFulfillOrder_IdempotentFailureReleasesKey(t *testing.T) {
	t.Parallel()

	fulfiller := &fakeFulfiller{err: fulfillment.ErrEmailIncomplete}
	router, token := newTestRouter(t, fulfiller, stubPinger{})
	orderID := uuid.NewString()
	body := internalBody()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, fulfillRequest(orderID, token, "req-2", body))
	if first.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", first.Code)
	}

	fulfiller.mu.Lock()
	fulfiller.err = nil
	fulfiller.mu.Unlock()

	second := httptest.NewRecorder()
	router.ServeHTTP(second, fulfillRequest(orderID, token, "req-2", body))
	if second.Code != http.StatusOK {
		t.Fatalf("expected retry to run, got %d", second.Code)
	}
	if fulfiller.callCount() != 2 {
		t.Fatalf("expected two orchestrator runs, got %d", fulfiller.callCount())
	}
}

func TestFulfillOrder_ConcurrentKeyConflicts(t *testing.T) {
	t.Parallel()

	fulfiller := &fakeFulfiller{started: make(chan struct{}, 1), block: make(chan struct{})}
	router, token := newTestRouter(t, fulfiller, stubPinger{})
	orderID := uuid.NewString()
	body := internalBody()

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, fulfillRequest(orderID, token, "req-3", body))
		done <- rec.Code
	}()

	<-fulfiller.started
	conflict := httptest.NewRecorder()
	router.ServeHTTP(conflict, fulfillRequest(orderID, token, "req-3", body))
	close(fulfiller.block)

	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 while first request is running, got %d", conflict.Code)
	}
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
}

// releasedKeyStore reports an existing claim whose record is already gone,
// as happens when a failing request releases the key between claim and read.
type releasedKeyStore struct{}

func (releasedKeyStore) Begin(context.Context, string) (*idempotency.Record, bool, error) {
	return nil, false, nil
}

func (releasedKeyStore) Complete(context.Context, string, int, []byte) error { return nil }
func (releasedKeyStore) Release(context.Context, string) error               { return nil }

func TestFulfillOrder_ReleasedKeyConflicts(t *testing.T) {
	t.Parallel()

	verifier := newTestVerifier(t)
	fulfiller := &fakeFulfiller{}
	h, err := New(Dependencies{
		DB:          stubPinger{},
		Fulfiller:   fulfiller,
		Idempotency: releasedKeyStore{},
		Tokens:      verifier,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	token, err := verifier.Issue("ops@partsdepot.example", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	rec := httptest.NewRecorder()
	Router(h).ServeHTTP(rec, fulfillRequest(uuid.NewString(), token, "req-released", internalBody()))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a released key, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := fulfiller.callCount(); got != 0 {
		t.Fatalf("expected no fulfillment run, got %d", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	router, _ := newTestRouter(t, &fakeFulfiller{}, stubPinger{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	router, _ = newTestRouter(t, &fakeFulfiller{}, stubPinger{err: errors.New("down")})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
