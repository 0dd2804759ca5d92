package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/notify"
	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Claim outcome labels for metrics.
const (
	claimAccepted   = "accepted"
	claimConflict   = "conflict"
	claimIneligible = "ineligible"
	claimNotFound   = "not_found"
	claimError      = "error"
)

// MatchingService turns an ACTIVE announcement into a delivery for exactly
// one eligible deliverer.
type MatchingService struct {
	store    QueryStore
	escrow   *EscrowService
	audit    *AuditService
	notifier *notify.Dispatcher
}

func NewMatchingService(store QueryStore, escrow *EscrowService, notifier *notify.Dispatcher) *MatchingService {
	return &MatchingService{
		store:    store,
		escrow:   escrow,
		audit:    NewAuditService(),
		notifier: notifier,
	}
}

// ClaimResult is returned to the claiming deliverer. It never carries the
// handoff code; that goes to the client.
type ClaimResult struct {
	Delivery models.Delivery `json:"delivery"`
	Payment  models.Payment  `json:"payment"`
}

// Claim assigns the announcement to the deliverer. Concurrent claims are
// serialized on the announcement row and backed by the partial unique index
// on active deliveries, so at most one succeeds; the rest get ErrConflict.
func (s *MatchingService) Claim(ctx context.Context, announcementID, delivererID uuid.UUID, proposedPrice *int64) (ClaimResult, error) {
	if proposedPrice != nil && *proposedPrice <= 0 {
		return ClaimResult{}, fmt.Errorf("%w: proposed price must be positive", domain.ErrValidation)
	}

	var (
		result       ClaimResult
		announcement models.Announcement
		code         string
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		profile, err := qtx.GetProfileForShare(ctx, delivererID)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("%w: deliverer has no verified profile", domain.ErrForbidden)
			}
			return fmt.Errorf("load deliverer profile: %w", err)
		}
		if profile.Role != domain.RoleDeliverer || profile.ValidationStatus != domain.ValidationApproved {
			return fmt.Errorf("%w: deliverer is not approved", domain.ErrForbidden)
		}

		announcement, err = qtx.GetAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return notFound(err, "announcement")
		}

		existing, err := qtx.GetActiveDeliveryByAnnouncement(ctx, announcementID)
		switch {
		case err == nil && existing.DelivererID == delivererID:
			return fmt.Errorf("%w: already claimed by you", domain.ErrConflict)
		case err == nil:
			return fmt.Errorf("%w: this request was just taken", domain.ErrConflict)
		case !repository.IsNotFound(err):
			return fmt.Errorf("load active delivery: %w", err)
		}

		if announcement.Status != domain.AnnouncementActive {
			return fmt.Errorf("%w: announcement is no longer available", domain.ErrConflict)
		}

		handoffCode, err := newValidationCode()
		if err != nil {
			return err
		}
		price := announcement.PriceMicros
		if proposedPrice != nil {
			price = *proposedPrice
		}
		d := models.Delivery{
			ID:                  uuid.New(),
			AnnouncementID:      announcement.ID,
			DelivererID:         delivererID,
			ClientID:            announcement.ClientID,
			Status:              domain.DeliveryAccepted,
			ValidationCode:      handoffCode,
			ProposedPriceMicros: price,
		}
		if err := qtx.CreateDelivery(ctx, &d); err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("%w: this request was just taken", domain.ErrConflict)
			}
			return fmt.Errorf("create delivery: %w", err)
		}

		if err := transitionAnnouncement(ctx, qtx, s.audit, announcement, domain.AnnouncementInProgress, delivererID, "claimed"); err != nil {
			return err
		}

		payment, err := s.escrow.Hold(ctx, qtx, d, price, announcement.Currency)
		if err != nil {
			return err
		}

		if err := appendDeliveryLog(ctx, qtx, d.ID, domain.DeliveryAccepted, "claimed", delivererID); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, qtx, entityDelivery, d.ID, &delivererID, "created", "", string(domain.DeliveryAccepted), nil); err != nil {
			return err
		}

		result = ClaimResult{Delivery: codeFor(delivererID, d), Payment: payment}
		code = d.ValidationCode
		return nil
	})
	if err != nil {
		observability.IncrementClaim(claimOutcome(err))
		if repository.IsUniqueViolation(err) {
			return ClaimResult{}, fmt.Errorf("%w: this request was just taken", domain.ErrConflict)
		}
		return ClaimResult{}, err
	}

	observability.IncrementClaim(claimAccepted)
	observability.IncrementEscrowTransition(string(domain.PaymentPending))
	zap.L().Info("announcement claimed",
		zap.String("announcement_id", announcementID.String()),
		zap.String("delivery_id", result.Delivery.ID.String()),
		zap.String("deliverer_id", delivererID.String()),
	)
	s.notifier.Dispatch(notify.Event{
		Type:        notify.EventDeliveryClaimed,
		RecipientID: announcement.ClientID,
		EntityID:    result.Delivery.ID,
		Data: map[string]any{
			"announcement_id": announcement.ID,
			"deliverer_id":    delivererID,
			"validation_code": code,
		},
	})
	return result, nil
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict), repository.IsUniqueViolation(err):
		return claimConflict
	case errors.Is(err, domain.ErrForbidden):
		return claimIneligible
	case errors.Is(err, domain.ErrNotFound):
		return claimNotFound
	default:
		return claimError
	}
}

func appendDeliveryLog(ctx context.Context, qtx repository.Querier, deliveryID uuid.UUID, status domain.DeliveryStatus, note string, actorID uuid.UUID) error {
	if err := qtx.InsertDeliveryLog(ctx, &models.DeliveryLog{
		DeliveryID: deliveryID,
		Status:     status,
		Note:       note,
		ActorID:    actor(actorID),
	}); err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}
