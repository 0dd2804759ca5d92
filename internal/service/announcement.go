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

// AnnouncementService manages the client side of delivery requests.
type AnnouncementService struct {
	store    QueryStore
	audit    *AuditService
	currency string
}

func NewAnnouncementService(store QueryStore, currency string) *AnnouncementService {
	return &AnnouncementService{store: store, audit: NewAuditService(), currency: currency}
}

type CreateAnnouncementInput struct {
	Title           string
	Description     string
	PickupAddress   string
	DeliveryAddress string
	PriceMicros     int64
	Publish         bool
}

func (s *AnnouncementService) Create(ctx context.Context, clientID uuid.UUID, in CreateAnnouncementInput) (models.Announcement, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.PickupAddress) == "" || strings.TrimSpace(in.DeliveryAddress) == "" {
		return models.Announcement{}, fmt.Errorf("%w: title, pickup and delivery addresses are required", domain.ErrValidation)
	}
	if in.PriceMicros <= 0 {
		return models.Announcement{}, fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	}

	status := domain.AnnouncementDraft
	if in.Publish {
		status = domain.AnnouncementActive
	}
	a := models.Announcement{
		ID:              uuid.New(),
		ClientID:        clientID,
		Status:          status,
		Title:           in.Title,
		Description:     in.Description,
		PickupAddress:   in.PickupAddress,
		DeliveryAddress: in.DeliveryAddress,
		PriceMicros:     in.PriceMicros,
		Currency:        s.currency,
	}
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if err := qtx.CreateAnnouncement(ctx, &a); err != nil {
			return fmt.Errorf("create announcement: %w", err)
		}
		return s.audit.Write(ctx, qtx, entityAnnouncement, a.ID, &clientID, "created", "", string(status), nil)
	})
	if err != nil {
		return models.Announcement{}, err
	}
	return a, nil
}

// Publish makes a DRAFT (or SUSPENDED) announcement claimable.
func (s *AnnouncementService) Publish(ctx context.Context, clientID, announcementID uuid.UUID) (models.Announcement, error) {
	return s.transitionOwned(ctx, clientID, announcementID, domain.AnnouncementActive, "published")
}

// Cancel withdraws an announcement that has not been claimed.
func (s *AnnouncementService) Cancel(ctx context.Context, clientID, announcementID uuid.UUID) (models.Announcement, error) {
	return s.transitionOwned(ctx, clientID, announcementID, domain.AnnouncementCancelled, "cancelled")
}

func (s *AnnouncementService) transitionOwned(ctx context.Context, clientID, announcementID uuid.UUID, to domain.AnnouncementStatus, action string) (models.Announcement, error) {
	var a models.Announcement
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		a, err = qtx.GetAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return notFound(err, "announcement")
		}
		if a.ClientID != clientID {
			return fmt.Errorf("%w: announcement belongs to another client", domain.ErrForbidden)
		}
		if to == domain.AnnouncementActive {
			// A suspended announcement stays out of the market until its
			// problem delivery is cancelled.
			if _, err := qtx.GetActiveDeliveryByAnnouncement(ctx, a.ID); err == nil {
				return fmt.Errorf("%w: announcement still has an open delivery", domain.ErrConflict)
			} else if !repository.IsNotFound(err) {
				return fmt.Errorf("load active delivery: %w", err)
			}
		}
		if err := transitionAnnouncement(ctx, qtx, s.audit, a, to, clientID, action); err != nil {
			return err
		}
		a.Status = to
		return nil
	})
	if err != nil {
		return models.Announcement{}, err
	}
	return a, nil
}

// transitionAnnouncement validates and applies an announcement status change
// inside qtx. a must have been read FOR UPDATE.
func transitionAnnouncement(ctx context.Context, qtx repository.Querier, audit *AuditService, a models.Announcement, to domain.AnnouncementStatus, actorID uuid.UUID, action string) error {
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("%w: announcement is %s and cannot become %s", domain.ErrConflict, a.Status, to)
	}
	rows, err := qtx.UpdateAnnouncementStatus(ctx, a.ID, a.Status, to)
	if err != nil {
		return fmt.Errorf("update announcement status: %w", err)
	}
	if err := requireExactlyOne(rows, "update announcement status"); err != nil {
		return err
	}
	return audit.Write(ctx, qtx, entityAnnouncement, a.ID, actor(actorID), action, string(a.Status), string(to), nil)
}

func (s *AnnouncementService) Get(ctx context.Context, announcementID uuid.UUID) (models.Announcement, error) {
	a, err := s.store.Queries().GetAnnouncement(ctx, announcementID)
	if err != nil {
		return models.Announcement{}, notFound(err, "announcement")
	}
	return a, nil
}

// ListAvailable returns claimable announcements, newest first.
func (s *AnnouncementService) ListAvailable(ctx context.Context, page Page) ([]models.Announcement, error) {
	limit, offset := page.normalize()
	items, err := s.store.Queries().ListAnnouncementsByStatus(ctx, domain.AnnouncementActive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	if items == nil {
		items = []models.Announcement{}
	}
	return items, nil
}

func (s *AnnouncementService) ListMine(ctx context.Context, clientID uuid.UUID, page Page) ([]models.Announcement, error) {
	limit, offset := page.normalize()
	items, err := s.store.Queries().ListAnnouncementsByClient(ctx, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list client announcements: %w", err)
	}
	if items == nil {
		items = []models.Announcement{}
	}
	return items, nil
}
