package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/service"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required"`
}

// CreateUser registers an actor with a wallet and, for gated roles, a
// PENDING verification profile.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.Role), domain.RoleAdmin) {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "admin accounts cannot self-register")
		return
	}

	reg, err := h.users.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		respondServiceError(w, r, err, "create user")
		return
	}
	RespondJSON(w, http.StatusCreated, reg)
}
