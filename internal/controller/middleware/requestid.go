// Package middleware contains HTTP middleware for the controller API.
package middleware

import (
	"net/http"

	"storefleet/internal/logger"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID in and out of the API.
const RequestIDHeader = "X-Request-Id"

// RequestID attaches a correlation ID to every request. An incoming ID
// is trusted as-is; otherwise one is generated. The ID is echoed in the
// response and placed in the request context for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
