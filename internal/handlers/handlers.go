package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/dropship/internal/fulfillment"
	"github.com/gitshopapp/dropship/internal/idempotency"
	"github.com/gitshopapp/dropship/internal/logging"
)

const maxFulfillBodyBytes = 1 << 20 // 1 MB

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Fulfiller runs a fulfillment request for one order.
type Fulfiller interface {
	ProcessOrder(ctx context.Context, orderID uuid.UUID, assignments []fulfillment.Assignment) (*fulfillment.Result, error)
}

// Handlers provides the admin HTTP API.
type Handlers struct {
	db          Pinger
	fulfiller   Fulfiller
	idempotency idempotency.Store
	tokens      *TokenVerifier
	logger      *slog.Logger
}

type Dependencies struct {
	DB          Pinger
	Fulfiller   Fulfiller
	Idempotency idempotency.Store
	Tokens      *TokenVerifier
	Logger      *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Fulfiller == nil {
		return nil, fmt.Errorf("handlers dependencies: fulfiller is required")
	}
	if deps.Idempotency == nil {
		return nil, fmt.Errorf("handlers dependencies: idempotency store is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: token verifier is required")
	}

	return &Handlers{
		db:          deps.DB,
		fulfiller:   deps.Fulfiller,
		idempotency: deps.Idempotency,
		tokens:      deps.Tokens,
		logger:      logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		logging.FromContext(ctx, nil).Error("failed to encode response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, payload)
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
