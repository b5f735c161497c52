// Package middleware holds the HTTP middleware chain of the BookNest API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	traceIDKey
)

// Correlation headers accepted from callers and echoed on the response.
const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

const maxRequestIDLen = 128

// RequestID tags every request with a correlation ID. A caller-supplied
// X-Request-ID is kept only when it is a short token of safe characters,
// otherwise a UUID is minted. X-Trace-ID is passed through under the same rule.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !safeCorrelationID(id) {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set(RequestIDHeader, id)

		if trace := r.Header.Get(TraceIDHeader); safeCorrelationID(trace) {
			ctx = context.WithValue(ctx, traceIDKey, trace)
			w.Header().Set(TraceIDHeader, trace)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func safeCorrelationID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':', c == '/':
		default:
			return false
		}
	}
	return true
}

// GetRequestID returns the request's correlation ID, or "" outside the middleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetTraceID returns the caller's trace ID if one was accepted.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
