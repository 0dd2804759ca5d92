package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const deliveryColumns = `id, announcement_id, deliverer_id, client_id, status, validation_code,
	proposed_price_micros, created_at, updated_at, completed_at`

func scanDelivery(row rowScanner) (models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(&d.ID, &d.AnnouncementID, &d.DelivererID, &d.ClientID, &d.Status, &d.ValidationCode,
		&d.ProposedPriceMicros, &d.CreatedAt, &d.UpdatedAt, &d.CompletedAt)
	return d, err
}

// CreateDelivery fails with a unique violation when the announcement
// already has a non-cancelled delivery.
func (q *Queries) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	query := `INSERT INTO deliveries
		(id, announcement_id, deliverer_id, client_id, status, validation_code, proposed_price_micros)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, d.ID, d.AnnouncementID, d.DelivererID, d.ClientID, d.Status,
		d.ValidationCode, d.ProposedPriceMicros).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	return nil
}

func (q *Queries) GetDelivery(ctx context.Context, id uuid.UUID) (models.Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
}

func (q *Queries) GetDeliveryForUpdate(ctx context.Context, id uuid.UUID) (models.Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetActiveDeliveryByAnnouncement(ctx context.Context, announcementID uuid.UUID) (models.Delivery, error) {
	return scanDelivery(q.db.QueryRow(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE announcement_id = $1 AND status <> 'CANCELLED'`, announcementID))
}

// UpdateDeliveryStatus is a compare-and-set on the current status. Moving to
// COMPLETED stamps completed_at.
func (q *Queries) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, from, to domain.DeliveryStatus) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE deliveries
		SET status = $3::text,
			updated_at = NOW(),
			completed_at = CASE WHEN $3::text = 'COMPLETED' THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = $2`, id, from, to)
}

func (q *Queries) ListDeliveriesByDeliverer(ctx context.Context, delivererID uuid.UUID, limit, offset int32) ([]models.Delivery, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE deliverer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, delivererID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return collect(rows, scanDelivery)
}

func (q *Queries) InsertDeliveryLog(ctx context.Context, l *models.DeliveryLog) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO delivery_logs (delivery_id, status, note, actor_id)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		l.DeliveryID, l.Status, l.Note, l.ActorID).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

func (q *Queries) ListDeliveryLogs(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, delivery_id, status, note, actor_id, created_at
		FROM delivery_logs WHERE delivery_id = $1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	return collect(rows, func(row rowScanner) (models.DeliveryLog, error) {
		var l models.DeliveryLog
		err := row.Scan(&l.ID, &l.DeliveryID, &l.Status, &l.Note, &l.ActorID, &l.CreatedAt)
		return l, err
	})
}
