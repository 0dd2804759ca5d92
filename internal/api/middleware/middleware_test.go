package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testSecret = "middleware-test-secret-0123456789"

func useTestTokens(t *testing.T) {
	t.Helper()
	prev := tokens
	ConfigureTokens(TokenConfig{Secret: testSecret, Issuer: "marketplace-test", Audience: "marketplace-api-test"})
	t.Cleanup(func() { tokens = prev })
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, _, err := IssueToken(userID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func signRaw(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["iss"] = "marketplace-test"
	claims["aud"] = "marketplace-api-test"
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAuthMiddlewarePutsActorInContext(t *testing.T) {
	useTestTokens(t)
	deliverer := uuid.New()

	var got Actor
	h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries", nil)
	req.Header.Set("Authorization", bearer(t, deliverer, domain.RoleDeliverer))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, Actor{ID: deliverer, Role: domain.RoleDeliverer}, got)
	assert.False(t, got.IsAdmin())
}

func TestAuthMiddlewareRejectsForeignClaims(t *testing.T) {
	useTestTokens(t)
	id := uuid.NewString()

	cases := map[string]jwt.MapClaims{
		"unknown role":       {"user_id": id, "sub": id, "role": "SUPERUSER"},
		"non uuid user":      {"user_id": "42", "sub": "42", "role": domain.RoleClient},
		"subject mismatch":   {"user_id": id, "sub": uuid.NewString(), "role": domain.RoleClient},
		"missing role claim": {"user_id": id, "sub": id},
		"missing user claim": {"sub": id, "role": domain.RoleAdmin},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/wallet", nil)
			req.Header.Set("Authorization", signRaw(t, claims))
			w := httptest.NewRecorder()
			AuthMiddleware(http.HandlerFunc(okHandler)).ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "auth/invalid-token")
		})
	}
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	useTestTokens(t)
	_, _, err := IssueToken(uuid.New(), "SUPERUSER", time.Hour)
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	useTestTokens(t)
	h := AuthMiddleware(RequireRole(domain.RoleDeliverer)(http.HandlerFunc(okHandler)))

	req := httptest.NewRequest(http.MethodPost, "/v1/announcements/x/claim", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), domain.RoleClient))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req.Header.Set("Authorization", bearer(t, uuid.New(), domain.RoleDeliverer))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// deliveryRouter mirrors the production chain: trace, logging and recover
// outside, auth inside the group.
func deliveryRouter(logger *zap.Logger, confirmPerMinute int) http.Handler {
	r := chi.NewRouter()
	r.Use(TraceMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoverMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Get("/v1/deliveries/{id}", okHandler)
		r.With(ConfirmRateLimiter(confirmPerMinute)).Post("/v1/deliveries/{id}/confirm", okHandler)
		r.Get("/v1/deliveries/{id}/panic", func(http.ResponseWriter, *http.Request) {
			panic("handoff store exploded")
		})
	})
	return r
}

func TestLoggingMiddlewareRecordsRouteAndActor(t *testing.T) {
	useTestTokens(t)
	core, logs := observer.New(zapcore.InfoLevel)
	h := deliveryRouter(zap.New(core), 100)
	client := uuid.New()
	deliveryID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/"+deliveryID, nil)
	req.Header.Set("Authorization", bearer(t, client, domain.RoleClient))
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/v1/deliveries/"+deliveryID, nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http_request").AllUntimed()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/v1/deliveries/{id}", first["route"])
	assert.Equal(t, client.String(), first["actor_id"])
	assert.Equal(t, domain.RoleClient, first["role"])
	assert.NotContains(t, first["route"], deliveryID)

	second := entries[1].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.EqualValues(t, http.StatusUnauthorized, second["status"])
	assert.NotContains(t, second, "actor_id")
}

func TestConfirmRateLimiterIsPerDelivery(t *testing.T) {
	useTestTokens(t)
	h := deliveryRouter(zap.NewNop(), 2)
	token := bearer(t, uuid.New(), domain.RoleDeliverer)
	first, second := uuid.NewString(), uuid.NewString()

	confirm := func(deliveryID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/deliveries/"+deliveryID+"/confirm", nil)
		req.Header.Set("Authorization", token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, confirm(first).Code)
	assert.Equal(t, http.StatusOK, confirm(first).Code)
	w := confirm(first)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "delivery/confirm-throttled")

	assert.Equal(t, http.StatusOK, confirm(second).Code)

	other := httptest.NewRequest(http.MethodPost, "/v1/deliveries/"+first+"/confirm", nil)
	other.Header.Set("Authorization", bearer(t, uuid.New(), domain.RoleDeliverer))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoverMiddlewareAnswersProblem(t *testing.T) {
	useTestTokens(t)
	core, logs := observer.New(zapcore.InfoLevel)
	h := deliveryRouter(zap.New(core), 100)
	deliverer := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/v1/deliveries/"+uuid.NewString()+"/panic", nil)
	req.Header.Set("Authorization", bearer(t, deliverer, domain.RoleDeliverer))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "server/internal-error")

	panics := logs.FilterMessage("panic recovered").AllUntimed()
	require.Len(t, panics, 1)
	fields := panics[0].ContextMap()
	assert.Equal(t, "/v1/deliveries/{id}/panic", fields["route"])
	assert.Equal(t, deliverer.String(), fields["actor_id"])
	assert.Equal(t, w.Header().Get(TraceHeader), fields["trace_id"])
}

func TestTraceMiddlewareValidatesIncomingID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "courier-app.4f2a9c")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "courier-app.4f2a9c", seen)
	assert.Equal(t, seen, w.Header().Get(TraceHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(TraceHeader, "<script>alert(1)</script>")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(TraceHeader))
}
