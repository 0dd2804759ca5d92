package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/notify"
	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errCodeMismatch aborts the confirmation transaction without touching state.
var errCodeMismatch = errors.New("validation code mismatch")

// HandoffService drives a delivery from claim to completion or cancellation.
type HandoffService struct {
	store    QueryStore
	escrow   *EscrowService
	audit    *AuditService
	notifier *notify.Dispatcher
	limiter  AttemptLimiter
}

func NewHandoffService(store QueryStore, escrow *EscrowService, limiter AttemptLimiter, notifier *notify.Dispatcher) *HandoffService {
	return &HandoffService{
		store:    store,
		escrow:   escrow,
		audit:    NewAuditService(),
		notifier: notifier,
		limiter:  limiter,
	}
}

// Requester identifies the caller of a delivery operation.
type Requester struct {
	ID    uuid.UUID
	Admin bool
}

// ConfirmCompletion checks the presented code and, on a match, completes the
// delivery and its announcement and releases the held payment in one unit.
// Every attempt by the assigned deliverer counts towards the limit; a
// mismatch changes nothing else.
func (s *HandoffService) ConfirmCompletion(ctx context.Context, delivererID, deliveryID uuid.UUID, code string) (models.Delivery, error) {
	code = strings.TrimSpace(code)
	if len(code) != domain.ValidationCodeLength || strings.Trim(code, "0123456789") != "" {
		return models.Delivery{}, fmt.Errorf("%w: code must be %d digits", domain.ErrValidation, domain.ValidationCodeLength)
	}

	// Only the assigned deliverer spends attempts; anyone else is turned away
	// before the counter moves.
	current, err := s.store.Queries().GetDelivery(ctx, deliveryID)
	if err != nil {
		return models.Delivery{}, notFound(err, "delivery")
	}
	if current.DelivererID != delivererID {
		return models.Delivery{}, fmt.Errorf("%w: delivery is assigned to another deliverer", domain.ErrForbidden)
	}

	limiterKey := deliveryID.String()
	if s.limiter != nil {
		allowed, err := s.limiter.Attempt(ctx, limiterKey)
		if err != nil {
			return models.Delivery{}, fmt.Errorf("check code attempts: %w", err)
		}
		if !allowed {
			observability.IncrementHandoff("locked")
			return models.Delivery{}, fmt.Errorf("%w: try again later", domain.ErrCodeLocked)
		}
	}

	var (
		delivery models.Delivery
		payment  models.Payment
	)
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		delivery, err = qtx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return notFound(err, "delivery")
		}
		if delivery.DelivererID != delivererID {
			return fmt.Errorf("%w: delivery is assigned to another deliverer", domain.ErrForbidden)
		}
		if !delivery.Status.CanTransition(domain.DeliveryCompleted) {
			return fmt.Errorf("%w: delivery is %s", domain.ErrConflict, delivery.Status)
		}
		if !codesEqual(delivery.ValidationCode, code) {
			return errCodeMismatch
		}

		if err := transitionDelivery(ctx, qtx, s.audit, delivery, domain.DeliveryCompleted, "handoff confirmed", delivererID); err != nil {
			return err
		}

		a, err := qtx.GetAnnouncementForUpdate(ctx, delivery.AnnouncementID)
		if err != nil {
			return notFound(err, "announcement")
		}
		if err := transitionAnnouncement(ctx, qtx, s.audit, a, domain.AnnouncementCompleted, delivererID, "completed"); err != nil {
			return err
		}

		held, err := qtx.GetPaymentByDelivery(ctx, delivery.ID)
		if err != nil {
			return notFound(err, "payment")
		}
		payment, err = s.escrow.Release(ctx, qtx, held.ID, delivererID)
		if err != nil {
			return err
		}
		delivery.Status = domain.DeliveryCompleted
		return nil
	})
	if errors.Is(err, errCodeMismatch) {
		observability.IncrementHandoff("invalid_code")
		return models.Delivery{}, fmt.Errorf("%w: incorrect code, try again", domain.ErrInvalidCode)
	}
	if err != nil {
		observability.IncrementHandoff("rejected")
		return models.Delivery{}, err
	}

	observability.IncrementHandoff("confirmed")
	observability.IncrementEscrowTransition(string(domain.PaymentCompleted))
	if s.limiter != nil {
		if resetErr := s.limiter.Reset(ctx, limiterKey); resetErr != nil {
			zap.L().Warn("failed to reset code attempts", zap.Error(resetErr), zap.String("delivery_id", limiterKey))
		}
	}
	s.notifier.Dispatch(
		notify.Event{Type: notify.EventDeliveryCompleted, RecipientID: delivery.ClientID, EntityID: delivery.ID},
		notify.Event{
			Type:        notify.EventPaymentReleased,
			RecipientID: delivery.DelivererID,
			EntityID:    payment.ID,
			Data:        map[string]any{"amount_micros": payment.AmountMicros, "currency": payment.Currency},
		},
	)
	return codeFor(delivererID, delivery), nil
}

// AdvanceStatus records a tracking step (PICKED_UP, IN_TRANSIT).
func (s *HandoffService) AdvanceStatus(ctx context.Context, delivererID, deliveryID uuid.UUID, status domain.DeliveryStatus) (models.Delivery, error) {
	if status != domain.DeliveryPickedUp && status != domain.DeliveryInTransit {
		return models.Delivery{}, fmt.Errorf("%w: status must be PICKED_UP or IN_TRANSIT", domain.ErrValidation)
	}
	var delivery models.Delivery
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		delivery, err = qtx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return notFound(err, "delivery")
		}
		if delivery.DelivererID != delivererID {
			return fmt.Errorf("%w: delivery is assigned to another deliverer", domain.ErrForbidden)
		}
		if err := transitionDelivery(ctx, qtx, s.audit, delivery, status, "", delivererID); err != nil {
			return err
		}
		delivery.Status = status
		return nil
	})
	if err != nil {
		return models.Delivery{}, err
	}
	s.notifier.Dispatch(notify.Event{
		Type:        notify.EventDeliveryStatus,
		RecipientID: delivery.ClientID,
		EntityID:    delivery.ID,
		Data:        map[string]any{"status": status},
	})
	return codeFor(delivererID, delivery), nil
}

// ReportProblem moves the delivery to PROBLEM, refunds a pending hold and
// suspends the announcement.
func (s *HandoffService) ReportProblem(ctx context.Context, req Requester, deliveryID uuid.UUID, reason string) (models.Delivery, error) {
	return s.abort(ctx, req, deliveryID, reason, domain.DeliveryProblem, domain.AnnouncementSuspended)
}

// Cancel moves the delivery to CANCELLED, refunds a pending hold and puts the
// announcement back on the market.
func (s *HandoffService) Cancel(ctx context.Context, req Requester, deliveryID uuid.UUID, reason string) (models.Delivery, error) {
	return s.abort(ctx, req, deliveryID, reason, domain.DeliveryCancelled, domain.AnnouncementActive)
}

func (s *HandoffService) abort(ctx context.Context, req Requester, deliveryID uuid.UUID, reason string, to domain.DeliveryStatus, announcementTo domain.AnnouncementStatus) (models.Delivery, error) {
	if strings.TrimSpace(reason) == "" {
		return models.Delivery{}, fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}

	var (
		delivery models.Delivery
		refunded bool
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		delivery, err = qtx.GetDeliveryForUpdate(ctx, deliveryID)
		if err != nil {
			return notFound(err, "delivery")
		}
		if !req.Admin && req.ID != delivery.DelivererID && req.ID != delivery.ClientID {
			return fmt.Errorf("%w: not a party to this delivery", domain.ErrForbidden)
		}
		refunded, err = abortDelivery(ctx, qtx, s.escrow, delivery, reason, to, announcementTo, req.ID)
		if err != nil {
			return err
		}
		delivery.Status = to
		return nil
	})
	if err != nil {
		return models.Delivery{}, err
	}

	if refunded {
		observability.IncrementEscrowTransition(string(domain.PaymentRefunded))
	}
	eventType := notify.EventDeliveryCancelled
	if to == domain.DeliveryProblem {
		eventType = notify.EventDeliveryProblem
	}
	var events []notify.Event
	for _, party := range []uuid.UUID{delivery.ClientID, delivery.DelivererID} {
		if party == req.ID {
			continue
		}
		events = append(events, notify.Event{
			Type:        eventType,
			RecipientID: party,
			EntityID:    delivery.ID,
			Data:        map[string]any{"reason": reason},
		})
	}
	s.notifier.Dispatch(events...)
	return codeFor(req.ID, delivery), nil
}

// abortDelivery moves a delivery read FOR UPDATE to `to`, refunds its pending
// hold and moves the announcement to announcementTo. A released hold means the
// deliverer has been paid and the delivery can no longer be unwound.
func abortDelivery(ctx context.Context, qtx repository.Querier, escrow *EscrowService, d models.Delivery, reason string, to domain.DeliveryStatus, announcementTo domain.AnnouncementStatus, actorID uuid.UUID) (bool, error) {
	if err := transitionDelivery(ctx, qtx, escrow.audit, d, to, reason, actorID); err != nil {
		return false, err
	}

	var refundable bool
	held, err := qtx.GetPaymentByDelivery(ctx, d.ID)
	switch {
	case err == nil && held.Status == domain.PaymentCompleted:
		return false, fmt.Errorf("%w: payment for delivery %s was already released", domain.ErrConflict, d.ID)
	case err == nil && held.Status == domain.PaymentPending:
		refundable = true
	case err != nil && !repository.IsNotFound(err):
		return false, fmt.Errorf("load payment: %w", err)
	}
	if refundable {
		if _, err := escrow.Refund(ctx, qtx, held.ID, reason, actorID); err != nil {
			return false, err
		}
	}

	a, err := qtx.GetAnnouncementForUpdate(ctx, d.AnnouncementID)
	if err != nil {
		return false, notFound(err, "announcement")
	}
	if a.Status != announcementTo && a.Status.CanTransition(announcementTo) {
		if err := transitionAnnouncement(ctx, qtx, escrow.audit, a, announcementTo, actorID, strings.ToLower(string(to))); err != nil {
			return false, err
		}
	}
	return refundable, nil
}

func transitionDelivery(ctx context.Context, qtx repository.Querier, audit *AuditService, d models.Delivery, to domain.DeliveryStatus, note string, actorID uuid.UUID) error {
	if !d.Status.CanTransition(to) {
		return fmt.Errorf("%w: delivery is %s and cannot become %s", domain.ErrConflict, d.Status, to)
	}
	rows, err := qtx.UpdateDeliveryStatus(ctx, d.ID, d.Status, to)
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if err := requireExactlyOne(rows, "update delivery status"); err != nil {
		return err
	}
	if err := appendDeliveryLog(ctx, qtx, d.ID, to, note, actorID); err != nil {
		return err
	}
	var metadata []byte
	if note != "" {
		metadata, _ = json.Marshal(map[string]string{"note": note})
	}
	return audit.Write(ctx, qtx, entityDelivery, d.ID, actor(actorID), "status_change", string(d.Status), string(to), metadata)
}

// codeFor returns d as seen by viewerID. The handoff code belongs to the
// client, who reads it out to the deliverer at the door; every other view
// omits it.
func codeFor(viewerID uuid.UUID, d models.Delivery) models.Delivery {
	if viewerID != d.ClientID {
		d.ValidationCode = ""
	}
	return d
}

// GetDelivery returns a delivery to one of its parties.
func (s *HandoffService) GetDelivery(ctx context.Context, req Requester, deliveryID uuid.UUID) (models.Delivery, error) {
	d, err := s.store.Queries().GetDelivery(ctx, deliveryID)
	if err != nil {
		return models.Delivery{}, notFound(err, "delivery")
	}
	if err := authorizeParty(req, d); err != nil {
		return models.Delivery{}, err
	}
	return codeFor(req.ID, d), nil
}

// DeliveryForAnnouncement returns the open or completed delivery of an
// announcement. It is how a client finds the code for a claimed request.
func (s *HandoffService) DeliveryForAnnouncement(ctx context.Context, req Requester, announcementID uuid.UUID) (models.Delivery, error) {
	d, err := s.store.Queries().GetActiveDeliveryByAnnouncement(ctx, announcementID)
	if err != nil {
		return models.Delivery{}, notFound(err, "delivery")
	}
	if err := authorizeParty(req, d); err != nil {
		return models.Delivery{}, err
	}
	return codeFor(req.ID, d), nil
}

func (s *HandoffService) ListMyDeliveries(ctx context.Context, delivererID uuid.UUID, page Page) ([]models.Delivery, error) {
	limit, offset := page.normalize()
	items, err := s.store.Queries().ListDeliveriesByDeliverer(ctx, delivererID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	if items == nil {
		items = []models.Delivery{}
	}
	for i := range items {
		items[i] = codeFor(delivererID, items[i])
	}
	return items, nil
}

func (s *HandoffService) DeliveryLogs(ctx context.Context, req Requester, deliveryID uuid.UUID) ([]models.DeliveryLog, error) {
	queries := s.store.Queries()
	d, err := queries.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, notFound(err, "delivery")
	}
	if err := authorizeParty(req, d); err != nil {
		return nil, err
	}
	logs, err := queries.ListDeliveryLogs(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	if logs == nil {
		logs = []models.DeliveryLog{}
	}
	return logs, nil
}

func authorizeParty(req Requester, d models.Delivery) error {
	if req.Admin || req.ID == d.DelivererID || req.ID == d.ClientID {
		return nil
	}
	return fmt.Errorf("%w: not a party to this delivery", domain.ErrForbidden)
}
