package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationHeader is the header producers use to propagate their own
// trace ID into the pipeline, so one notification can be followed from
// the originating business transaction to its dispatch log lines.
const CorrelationHeader = "X-Correlation-ID"

type correlationKey struct{}

// CorrelationID stores the caller-supplied correlation ID on the request
// context, minting a fresh UUID when the header is absent. The value is
// echoed back on the response so even callers that did not send one can
// quote it when reporting a problem.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation ID stored by the middleware.
// Returns an empty string if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}
