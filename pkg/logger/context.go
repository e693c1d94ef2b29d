package logger

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the correlation ID
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDFieldKey is the field key used for correlation ID in log entries
	CorrelationIDFieldKey = "correlation_id"
)

type contextKey string

const correlationIDContextKey contextKey = "correlation_id"

// WithCorrelationIDContext adds correlation ID to context
func WithCorrelationIDContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// GetCorrelationIDFromContext retrieves correlation ID from context
func GetCorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return correlationID
	}
	return ""
}

// EnsureCorrelationID returns ctx with a correlation ID, generating one if needed.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if correlationID := GetCorrelationIDFromContext(ctx); correlationID != "" {
		return ctx, correlationID
	}
	correlationID := uuid.New().String()
	return WithCorrelationIDContext(ctx, correlationID), correlationID
}

// EnsureHTTPCorrelationID makes sure the request carries a valid UUID correlation ID
// in both its header and its context.
func EnsureHTTPCorrelationID(r *http.Request) (*http.Request, string) {
	correlationID := r.Header.Get(CorrelationIDHeader)
	if _, err := uuid.Parse(correlationID); err != nil {
		correlationID = uuid.New().String()
		r.Header.Set(CorrelationIDHeader, correlationID)
	}
	return r.WithContext(WithCorrelationIDContext(r.Context(), correlationID)), correlationID
}

// FromContext returns baseLogger enriched with the correlation ID stored in ctx, if any.
func FromContext(ctx context.Context, baseLogger Logger) Logger {
	if correlationID := GetCorrelationIDFromContext(ctx); correlationID != "" {
		return baseLogger.WithCorrelationID(correlationID)
	}
	return baseLogger
}
