package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	// TraceHeader carries the trace id in both directions.
	TraceHeader     = "X-Trace-ID"
	requestIDHeader = "X-Request-ID"
)

var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// requestScope is shared by the middleware chain of one request. Auth fills
// in the actor so outer middleware can report who made the call.
type requestScope struct {
	traceID string
	actor   Actor
	authed  bool
}

// TraceMiddleware reuses a well-formed X-Trace-ID or X-Request-ID from the
// caller, or mints one, and echoes it back on the response.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		scope := &requestScope{traceID: traceID}
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), traceContextKey, scope)))
	})
}

func incomingTraceID(r *http.Request) string {
	for _, h := range []string{TraceHeader, requestIDHeader} {
		if v := r.Header.Get(h); validTraceID.MatchString(v) {
			return v
		}
	}
	return uuid.NewString()
}

func scopeFrom(ctx context.Context) *requestScope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(traceContextKey).(*requestScope)
	return scope
}

// scopedActor returns the actor auth recorded for this request, even when
// called from middleware outside the authenticated group.
func scopedActor(ctx context.Context) (Actor, bool) {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor, true
	}
	if scope := scopeFrom(ctx); scope != nil && scope.authed {
		return scope.actor, true
	}
	return Actor{}, false
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if scope := scopeFrom(ctx); scope != nil {
		return scope.traceID
	}
	return ""
}
