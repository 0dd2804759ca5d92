package middleware

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/api/problem"
	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	actorContextKey contextKey = "actor"
	traceContextKey contextKey = "request_scope"
)

// knownRoles are the roles a token may carry.
var knownRoles = []string{
	domain.RoleClient,
	domain.RoleDeliverer,
	domain.RoleProvider,
	domain.RoleMerchant,
	domain.RoleAdmin,
}

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// TokenConfig holds the HS256 signing secret and the issuer and audience
// every marketplace token must carry.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

var tokens TokenConfig

// ConfigureTokens sets the signing and validation parameters. An empty
// secret keeps the previous one.
func ConfigureTokens(cfg TokenConfig) {
	if cfg.Secret != "" {
		tokens.Secret = cfg.Secret
	}
	tokens.Issuer = strings.TrimSpace(cfg.Issuer)
	tokens.Audience = strings.TrimSpace(cfg.Audience)
}

type authClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for userID acting as role.
func IssueToken(userID uuid.UUID, role string, ttl time.Duration) (string, time.Time, error) {
	if tokens.Secret == "" {
		return "", time.Time{}, fmt.Errorf("token secret is not configured")
	}
	if !slices.Contains(knownRoles, role) {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := authClaims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    tokens.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if tokens.Audience != "" {
		claims.Audience = jwt.ClaimStrings{tokens.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tokens.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// AuthMiddleware validates the bearer token and puts the caller's Actor in
// the request context. The user_id claim must be a UUID and the role one
// the marketplace knows.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/authorization-header-required"), http.StatusText(http.StatusUnauthorized), "Authorization header required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token-format"), http.StatusText(http.StatusUnauthorized), "Invalid token format")
			return
		}
		if tokens.Secret == "" {
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), http.StatusText(http.StatusInternalServerError), "auth is not configured")
			return
		}

		actor, err := parseActor(tokenString)
		if err != nil {
			problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/invalid-token"), http.StatusText(http.StatusUnauthorized), "Invalid token")
			return
		}
		if scope := scopeFrom(r.Context()); scope != nil {
			scope.actor, scope.authed = actor, true
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorContextKey, actor)))
	})
}

func parseActor(tokenString string) (Actor, error) {
	claims := &authClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if tokens.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(tokens.Issuer))
	}
	if tokens.Audience != "" {
		opts = append(opts, jwt.WithAudience(tokens.Audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(tokens.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Actor{}, fmt.Errorf("user_id claim: %w", err)
	}
	if claims.Subject != "" && claims.Subject != claims.UserID {
		return Actor{}, fmt.Errorf("subject does not match user_id")
	}
	if !slices.Contains(knownRoles, claims.Role) {
		return Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return Actor{ID: id, Role: claims.Role}, nil
}

// RequireRole ensures the authenticated actor holds one of the allowed roles.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !slices.Contains(allowed, actor.Role) {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), http.StatusText(http.StatusForbidden), "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}
