package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const paymentColumns = `id, delivery_id, payer_id, payee_id, amount_micros, currency, status, type, reason, created_at, updated_at`

func scanPayment(row rowScanner) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.DeliveryID, &p.PayerID, &p.PayeeID, &p.AmountMicros, &p.Currency, &p.Status,
		&p.Type, &p.Reason, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `INSERT INTO payments (id, delivery_id, payer_id, payee_id, amount_micros, currency, status, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, p.ID, p.DeliveryID, p.PayerID, p.PayeeID, p.AmountMicros, p.Currency,
		p.Status, p.Type).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (q *Queries) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetPaymentByDelivery(ctx context.Context, deliveryID uuid.UUID) (models.Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE delivery_id = $1`, deliveryID))
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, reason *string) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE payments
		SET status = $3, reason = COALESCE($4, reason), updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to, reason)
}

func (q *Queries) CreateCommission(ctx context.Context, c *models.Commission) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO commissions (id, payment_id, delivery_id, rate, amount_micros)
		VALUES ($1, $2, $3, $4::numeric, $5) RETURNING created_at`,
		c.ID, c.PaymentID, c.DeliveryID, c.Rate, c.AmountMicros).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create commission: %w", err)
	}
	return nil
}
