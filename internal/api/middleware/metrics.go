package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/go-chi/chi/v5"
)

const anonymousRole = "ANONYMOUS"

// MetricsMiddleware records request durations by route pattern and caller
// role, so client, deliverer and admin traffic can be told apart.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		role := anonymousRole
		if actor, ok := scopedActor(r.Context()); ok {
			role = actor.Role
		}
		observability.ObserveHTTP(r.Method, routePattern(r), role, rw.status, time.Since(start))
	})
}

// routePattern returns the chi pattern (for example /v1/deliveries/{id}/confirm)
// so ids never become label values. Unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
