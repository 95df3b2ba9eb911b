package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router wires the admin API routes and middleware.
func Router(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet).Name("health")

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.RequireOperator)
	adminRouter.HandleFunc("/orders/{id}/fulfill", h.FulfillOrder).Methods(http.MethodPost).Name("admin.orders.fulfill")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Error: "not found"})
	})

	return r
}
