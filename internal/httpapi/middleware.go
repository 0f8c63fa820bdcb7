package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const correlationIDKey contextKey = "correlationId"

// CorrelationMiddleware reads X-Correlation-ID header and adds it to
// context, generating one if the client didn't supply it. This enables
// end-to-end request tracing across client and server logs.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)

		logger := log.With().Str("correlation_id", correlationID).Logger()
		ctx = logger.WithContext(ctx)

		r = r.WithContext(ctx)
		next.ServeHTTP(w, r)
	})
}

// GetCorrelationID retrieves the correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// WithObjectClass tags the context's logger with the object class a
// syncUp/syncDown request resolved against the registry, so
// every log line for the rest of the request — including a syncUp's
// eventual MarkCommitted/CommittedWatermark calls — carries it alongside
// the correlation id. This is the protocol's own session-scoped field: a
// sync-counter session is always scoped to one object class, unlike the
// bearer-session header this replaces.
func WithObjectClass(ctx context.Context, objectClass string) context.Context {
	logger := log.Ctx(ctx).With().Str("object_class", objectClass).Logger()
	return logger.WithContext(ctx)
}

// WithUser tags the context's logger with the authenticated user id once a
// handler has resolved it, so every subsequent log line (including
// internalError's) is attributable to an account without re-querying it.
func WithUser(ctx context.Context, userID int64) context.Context {
	logger := log.Ctx(ctx).With().Int64("user_id", userID).Logger()
	return logger.WithContext(ctx)
}
