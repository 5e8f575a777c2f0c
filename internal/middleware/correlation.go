// Package middleware provides the HTTP middleware stack: correlation
// IDs, request logging, panic recovery, body limits, and rate limiting.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the per-request ID, echoed on responses so
	// API callers can quote it when reporting a problem.
	RequestIDHeader = "X-Request-ID"
	// CorrelationIDHeader ties together a chain of requests (e.g. a
	// request creation and the webhook deliveries it triggers).
	CorrelationIDHeader = "X-Correlation-ID"
)

type requestIDKey struct{}
type correlationIDKey struct{}

// RequestCorrelation stamps every request with IDs and echoes them back.
type RequestCorrelation struct {
	logger *zap.Logger
}

// NewRequestCorrelation creates the correlation middleware.
func NewRequestCorrelation(logger *zap.Logger) *RequestCorrelation {
	return &RequestCorrelation{logger: logger}
}

// Middleware accepts inbound IDs when present and generates them when
// absent. The request ID is always fresh per hop unless supplied.
func (rc *RequestCorrelation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = newID()
		}
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = requestID
		}

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, correlationIDKey{}, correlationID)

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(CorrelationIDHeader, correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetCorrelationID returns the correlation ID from ctx, or "".
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextLogger returns logger annotated with the request's IDs.
func ContextLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	fields := make([]zap.Field, 0, 2)
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetCorrelationID(ctx); id != "" && id != GetRequestID(ctx) {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}
