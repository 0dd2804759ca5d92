package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const announcementColumns = `id, client_id, status, title, description, pickup_address, delivery_address,
	price_micros, currency, created_at, updated_at`

func scanAnnouncement(row rowScanner) (models.Announcement, error) {
	var a models.Announcement
	err := row.Scan(&a.ID, &a.ClientID, &a.Status, &a.Title, &a.Description, &a.PickupAddress, &a.DeliveryAddress,
		&a.PriceMicros, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (q *Queries) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	query := `INSERT INTO announcements
		(id, client_id, status, title, description, pickup_address, delivery_address, price_micros, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at, updated_at`
	err := q.db.QueryRow(ctx, query, a.ID, a.ClientID, a.Status, a.Title, a.Description,
		a.PickupAddress, a.DeliveryAddress, a.PriceMicros, a.Currency).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

func (q *Queries) GetAnnouncement(ctx context.Context, id uuid.UUID) (models.Announcement, error) {
	return scanAnnouncement(q.db.QueryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1`, id))
}

func (q *Queries) GetAnnouncementForUpdate(ctx context.Context, id uuid.UUID) (models.Announcement, error) {
	return scanAnnouncement(q.db.QueryRow(ctx, `SELECT `+announcementColumns+` FROM announcements WHERE id = $1 FOR UPDATE`, id))
}

// UpdateAnnouncementStatus is a compare-and-set on the current status.
func (q *Queries) UpdateAnnouncementStatus(ctx context.Context, id uuid.UUID, from, to domain.AnnouncementStatus) (int64, error) {
	return execRows(ctx, q.db, `UPDATE announcements SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
}

func (q *Queries) ListAnnouncementsByStatus(ctx context.Context, status domain.AnnouncementStatus, limit, offset int32) ([]models.Announcement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+announcementColumns+` FROM announcements
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return collect(rows, scanAnnouncement)
}

func (q *Queries) ListAnnouncementsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int32) ([]models.Announcement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+announcementColumns+` FROM announcements
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list client announcements: %w", err)
	}
	return collect(rows, scanAnnouncement)
}
