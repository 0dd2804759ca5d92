package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/api/problem"
	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits registration and login per client IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded("rate-limit-exceeded", fmt.Sprintf("Rate limit of %d req/s exceeded for this IP", rps))),
	)
}

// AuthRateLimiter limits authenticated traffic per actor, falling back to the
// client IP when no actor is present.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if actor, ok := ActorFromContext(r.Context()); ok {
				return "actor:" + actor.ID.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded("rate-limit-exceeded", fmt.Sprintf("Rate limit of %d req/s exceeded for this user", rps))),
	)
}

// ConfirmRateLimiter throttles handoff confirmations per deliverer and
// delivery. It sits in front of the code attempt budget and keeps a
// scripted deliverer from hammering the attempt store.
func ConfirmRateLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			actor, _ := ActorFromContext(r.Context())
			return "confirm:" + actor.ID.String() + ":" + chi.URLParam(r, "id"), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			observability.IncrementHandoff("throttled")
			limitExceeded("delivery/confirm-throttled", fmt.Sprintf("At most %d confirmations per minute for this delivery", perMinute))(w, r)
		}),
	)
}

func limitExceeded(kind, detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusTooManyRequests, problem.Type(kind), http.StatusText(http.StatusTooManyRequests), detail)
	}
}
