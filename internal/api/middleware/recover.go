package middleware

import (
	"net/http"

	"github.com/ayo6706/delivery-marketplace/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware turns a handler panic into a 500 problem response and
// logs it with the route and caller. http.ErrAbortHandler is re-raised so
// net/http can drop the connection.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				fields := []zap.Field{
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("route", routePattern(r)),
					zap.String("trace_id", TraceIDFromContext(r.Context())),
					zap.Stack("stack"),
				}
				if actor, ok := scopedActor(r.Context()); ok {
					fields = append(fields, zap.String("actor_id", actor.ID.String()))
				}
				logger.Error("panic recovered", fields...)

				problem.Write(
					w,
					r,
					http.StatusInternalServerError,
					problem.Type("server/internal-error"),
					http.StatusText(http.StatusInternalServerError),
					"unexpected server error",
				)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
