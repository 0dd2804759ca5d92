package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/api/middleware"
	"github.com/ayo6706/delivery-marketplace/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTokenTTL = 24 * time.Hour

// AuthHandler issues bearer tokens. Login is a mock keyed by user ID; there
// is no password check.
type AuthHandler struct {
	users *service.UserService
	ttl   time.Duration
}

func NewAuthHandler(users *service.UserService, ttl time.Duration) *AuthHandler {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &AuthHandler{users: users, ttl: ttl}
}

type loginRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	uid := uuid.MustParse(req.UserID)

	user, err := h.users.GetUser(r.Context(), uid)
	if err != nil {
		respondServiceError(w, r, err, "login")
		return
	}

	tokenString, expires, err := middleware.IssueToken(uid, user.Role, h.ttl)
	if err != nil {
		zap.L().Error("sign token failed", zap.Error(err), zap.String("user_id", uid.String()))
		RespondError(w, r, http.StatusInternalServerError, "auth/token-signing-failed", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"token":      tokenString,
		"role":       user.Role,
		"expires_at": expires.UTC(),
	})
}
