package handlers

import (
	"net/http"
)

// SecurityHeaders sets baseline security headers for all responses.
// Fulfillment responses carry document locations, so nothing is cached.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		headers.Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
