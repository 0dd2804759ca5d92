package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/notify"
	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowService holds delivery payments until the handoff is confirmed.
// Hold, Release and Refund run inside the caller's transaction; each settles a
// payment at most once because the row is locked and must still be PENDING.
type EscrowService struct {
	store          QueryStore
	ledger         *LedgerService
	audit          *AuditService
	notifier       *notify.Dispatcher
	commissionRate decimal.Decimal
}

func NewEscrowService(store QueryStore, ledger *LedgerService, commissionRate decimal.Decimal, notifier *notify.Dispatcher) *EscrowService {
	return &EscrowService{
		store:          store,
		ledger:         ledger,
		audit:          NewAuditService(),
		notifier:       notifier,
		commissionRate: commissionRate,
	}
}

// Hold records a PENDING payment for the delivery. No wallet is touched.
func (s *EscrowService) Hold(ctx context.Context, qtx repository.Querier, delivery models.Delivery, amount int64, currency string) (models.Payment, error) {
	if amount <= 0 {
		return models.Payment{}, fmt.Errorf("%w: escrow amount must be positive", domain.ErrValidation)
	}
	p := models.Payment{
		ID:           uuid.New(),
		DeliveryID:   delivery.ID,
		PayerID:      delivery.ClientID,
		PayeeID:      delivery.DelivererID,
		AmountMicros: amount,
		Currency:     currency,
		Status:       domain.PaymentPending,
		Type:         domain.PaymentTypeDelivery,
	}
	if err := qtx.CreatePayment(ctx, &p); err != nil {
		if repository.IsUniqueViolation(err) {
			return models.Payment{}, fmt.Errorf("%w: delivery %s already has a payment", domain.ErrConflict, delivery.ID)
		}
		return models.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	if err := s.audit.Write(ctx, qtx, entityPayment, p.ID, nil, "hold", "", string(domain.PaymentPending), nil); err != nil {
		return models.Payment{}, err
	}
	return p, nil
}

// Release completes a PENDING payment and credits the payee with the amount
// net of commission. The commission remainder is recorded separately.
func (s *EscrowService) Release(ctx context.Context, qtx repository.Querier, paymentID uuid.UUID, actorID uuid.UUID) (models.Payment, error) {
	p, err := s.lockPending(ctx, qtx, paymentID)
	if err != nil {
		return models.Payment{}, err
	}

	gross := domain.NewMoney(p.AmountMicros, p.Currency)
	net, commission := gross.SplitCommission(s.commissionRate)

	if err := s.transition(ctx, qtx, p, domain.PaymentCompleted, nil, actorID); err != nil {
		return models.Payment{}, err
	}

	wallet, err := qtx.GetWalletByUser(ctx, p.PayeeID)
	if err != nil {
		return models.Payment{}, notFound(err, "payee wallet")
	}
	if net.Amount > 0 {
		if _, err := s.ledger.Credit(ctx, qtx, wallet.ID, net.Amount, domain.TxTypeDeposit, paymentReference(p.ID)); err != nil {
			return models.Payment{}, fmt.Errorf("credit payee: %w", err)
		}
	}

	if err := qtx.CreateCommission(ctx, &models.Commission{
		ID:           uuid.New(),
		PaymentID:    p.ID,
		DeliveryID:   p.DeliveryID,
		Rate:         s.commissionRate.String(),
		AmountMicros: commission.Amount,
	}); err != nil {
		return models.Payment{}, fmt.Errorf("record commission: %w", err)
	}

	p.Status = domain.PaymentCompleted
	return p, nil
}

// Refund marks a PENDING payment REFUNDED. Nothing was charged at hold time,
// so no wallet is credited.
func (s *EscrowService) Refund(ctx context.Context, qtx repository.Querier, paymentID uuid.UUID, reason string, actorID uuid.UUID) (models.Payment, error) {
	p, err := s.lockPending(ctx, qtx, paymentID)
	if err != nil {
		return models.Payment{}, err
	}
	r := reason
	if err := s.transition(ctx, qtx, p, domain.PaymentRefunded, &r, actorID); err != nil {
		return models.Payment{}, err
	}
	p.Status = domain.PaymentRefunded
	p.Reason = &r
	return p, nil
}

func (s *EscrowService) lockPending(ctx context.Context, qtx repository.Querier, paymentID uuid.UUID) (models.Payment, error) {
	p, err := qtx.GetPaymentForUpdate(ctx, paymentID)
	if err != nil {
		return models.Payment{}, notFound(err, "payment")
	}
	if p.Status != domain.PaymentPending {
		return models.Payment{}, fmt.Errorf("%w: payment %s is %s", domain.ErrNoOp, p.ID, p.Status)
	}
	return p, nil
}

func (s *EscrowService) transition(ctx context.Context, qtx repository.Querier, p models.Payment, to domain.PaymentStatus, reason *string, actorID uuid.UUID) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: payment %s cannot move from %s to %s", domain.ErrConflict, p.ID, p.Status, to)
	}
	rows, err := qtx.UpdatePaymentStatus(ctx, p.ID, p.Status, to, reason)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if err := requireExactlyOne(rows, "update payment status"); err != nil {
		return err
	}

	var metadata []byte
	if reason != nil {
		metadata, _ = json.Marshal(map[string]string{"reason": *reason})
	}
	return s.audit.Write(ctx, qtx, entityPayment, p.ID, actor(actorID), "status_change", string(p.Status), string(to), metadata)
}

// ReleasePayment is the admin-mediated release of a held payment. It only
// settles a hold whose delivery was confirmed; the handoff confirmation
// releases in the same unit, so this is a recovery path.
func (s *EscrowService) ReleasePayment(ctx context.Context, adminID, paymentID uuid.UUID) (models.Payment, error) {
	var released models.Payment
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		d, err := s.lockDeliveryOf(ctx, qtx, paymentID)
		if err != nil {
			return err
		}
		if d.Status != domain.DeliveryCompleted {
			return fmt.Errorf("%w: delivery %s is %s, funds are released by the handoff confirmation", domain.ErrConflict, d.ID, d.Status)
		}
		released, err = s.Release(ctx, qtx, paymentID, adminID)
		return err
	})
	if err != nil {
		return models.Payment{}, err
	}
	observability.IncrementEscrowTransition(string(domain.PaymentCompleted))
	s.notifier.Dispatch(notify.Event{
		Type:        notify.EventPaymentReleased,
		RecipientID: released.PayeeID,
		EntityID:    released.ID,
		Data:        map[string]any{"amount_micros": released.AmountMicros, "currency": released.Currency},
	})
	return released, nil
}

// RefundPayment is the admin-mediated refund of a held payment. The delivery
// is cancelled in the same unit and the announcement returns to the market,
// so a refunded hold never leaves an open delivery behind.
func (s *EscrowService) RefundPayment(ctx context.Context, adminID, paymentID uuid.UUID, reason string) (models.Payment, error) {
	if reason == "" {
		return models.Payment{}, fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}
	var (
		refunded models.Payment
		delivery models.Delivery
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		delivery, err = s.lockDeliveryOf(ctx, qtx, paymentID)
		if err != nil {
			return err
		}
		if _, err := s.lockPending(ctx, qtx, paymentID); err != nil {
			return err
		}
		if _, err := abortDelivery(ctx, qtx, s, delivery, reason, domain.DeliveryCancelled, domain.AnnouncementActive, adminID); err != nil {
			return err
		}
		refunded, err = qtx.GetPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Payment{}, err
	}
	observability.IncrementEscrowTransition(string(domain.PaymentRefunded))
	s.notifier.Dispatch(
		notify.Event{
			Type:        notify.EventPaymentRefunded,
			RecipientID: refunded.PayerID,
			EntityID:    refunded.ID,
			Data:        map[string]any{"reason": reason},
		},
		notify.Event{
			Type:        notify.EventDeliveryCancelled,
			RecipientID: delivery.DelivererID,
			EntityID:    delivery.ID,
			Data:        map[string]any{"reason": reason},
		},
	)
	return refunded, nil
}

// lockDeliveryOf locks the delivery a payment belongs to. Deliveries are
// always locked before their payment.
func (s *EscrowService) lockDeliveryOf(ctx context.Context, qtx repository.Querier, paymentID uuid.UUID) (models.Delivery, error) {
	p, err := qtx.GetPayment(ctx, paymentID)
	if err != nil {
		return models.Delivery{}, notFound(err, "payment")
	}
	d, err := qtx.GetDeliveryForUpdate(ctx, p.DeliveryID)
	if err != nil {
		return models.Delivery{}, notFound(err, "delivery")
	}
	return d, nil
}

func (s *EscrowService) GetPayment(ctx context.Context, paymentID uuid.UUID) (models.Payment, error) {
	p, err := s.store.Queries().GetPayment(ctx, paymentID)
	if err != nil {
		return models.Payment{}, notFound(err, "payment")
	}
	return p, nil
}

func paymentReference(paymentID uuid.UUID) string {
	return "payment:" + paymentID.String()
}
