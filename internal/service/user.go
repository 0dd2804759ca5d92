package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
)

// UserService registers marketplace actors together with their wallet and,
// for gated roles, a PENDING verification profile.
type UserService struct {
	store    QueryStore
	ledger   *LedgerService
	audit    *AuditService
	currency string
}

func NewUserService(store QueryStore, ledger *LedgerService, currency string) *UserService {
	return &UserService{store: store, ledger: ledger, audit: NewAuditService(), currency: currency}
}

type RegisterInput struct {
	Username string
	Email    string
	Role     string
}

type Registration struct {
	User    models.User     `json:"user"`
	Wallet  WalletSummary   `json:"wallet"`
	Profile *models.Profile `json:"profile,omitempty"`
}

func validRole(role string) bool {
	switch role {
	case domain.RoleClient, domain.RoleDeliverer, domain.RoleProvider, domain.RoleMerchant, domain.RoleAdmin:
		return true
	}
	return false
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	role := strings.ToUpper(strings.TrimSpace(in.Role))
	if strings.TrimSpace(in.Username) == "" || strings.TrimSpace(in.Email) == "" {
		return Registration{}, fmt.Errorf("%w: username and email are required", domain.ErrValidation)
	}
	if !validRole(role) {
		return Registration{}, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, in.Role)
	}

	var out Registration
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		u := models.User{ID: uuid.New(), Username: in.Username, Email: in.Email, Role: role}
		if err := qtx.CreateUser(ctx, &u); err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("%w: username or email already registered", domain.ErrConflict)
			}
			return fmt.Errorf("create user: %w", err)
		}
		w, err := s.ledger.EnsureWallet(ctx, qtx, u.ID, s.currency)
		if err != nil {
			return err
		}
		out = Registration{User: u, Wallet: summarize(w)}

		if domain.RequiresVerification(role) {
			p := models.Profile{UserID: u.ID, Role: role, ValidationStatus: domain.ValidationPending}
			if err := qtx.CreateProfile(ctx, &p); err != nil {
				return fmt.Errorf("create profile: %w", err)
			}
			if err := s.audit.Write(ctx, qtx, entityProfile, u.ID, &u.ID, "created", "", string(domain.ValidationPending), nil); err != nil {
				return err
			}
			out.Profile = &p
		}
		return nil
	})
	if err != nil {
		return Registration{}, err
	}
	return out, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	u, err := s.store.Queries().GetUser(ctx, id)
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	return u, nil
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	u, err := s.store.Queries().GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, notFound(err, "user")
	}
	return u, nil
}

// EnsureAdmin registers the bootstrap administrator unless the username is
// already taken. A taken username with another role is a conflict.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email string) (models.User, bool, error) {
	u, err := s.store.Queries().GetUserByUsername(ctx, username)
	switch {
	case err == nil && u.Role == domain.RoleAdmin:
		return u, false, nil
	case err == nil:
		return models.User{}, false, fmt.Errorf("%w: %q is registered as %s", domain.ErrConflict, username, u.Role)
	case !repository.IsNotFound(err):
		return models.User{}, false, fmt.Errorf("load user: %w", err)
	}
	reg, err := s.Register(ctx, RegisterInput{Username: username, Email: email, Role: domain.RoleAdmin})
	if err != nil {
		return models.User{}, false, err
	}
	return reg.User, true, nil
}
