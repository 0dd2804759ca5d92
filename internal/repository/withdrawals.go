package repository

import (
	"context"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const withdrawalColumns = `id, wallet_id, user_id, amount_micros, currency, status, preferred_method, destination,
	admin_note, reviewed_by, review_required, priority, payout_ref, payout_attempts, payout_error,
	payout_claimed_at, created_at, updated_at, processed_at`

func scanWithdrawal(row rowScanner) (models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.WalletID, &w.UserID, &w.AmountMicros, &w.Currency, &w.Status, &w.PreferredMethod,
		&w.Destination, &w.AdminNote, &w.ReviewedBy, &w.ReviewRequired, &w.Priority, &w.PayoutRef,
		&w.PayoutAttempts, &w.PayoutError, &w.PayoutClaimedAt, &w.CreatedAt, &w.UpdatedAt, &w.ProcessedAt)
	return w, err
}

func (q *Queries) CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO withdrawal_requests
			(id, wallet_id, user_id, amount_micros, currency, status, preferred_method, destination, review_required, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		w.ID, w.WalletID, w.UserID, w.AmountMicros, w.Currency, w.Status, w.PreferredMethod, w.Destination,
		w.ReviewRequired, w.Priority).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create withdrawal request: %w", err)
	}
	return nil
}

func (q *Queries) GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
}

func (q *Queries) GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	return scanWithdrawal(q.db.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) CountOpenWithdrawals(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM withdrawal_requests
		WHERE wallet_id = $1 AND status IN ('PENDING', 'PROCESSING')`, walletID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open withdrawals: %w", err)
	}
	return n, nil
}

// UpdateWithdrawalStatus is a compare-and-set on the current status. Terminal
// targets stamp processed_at.
func (q *Queries) UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE withdrawal_requests
		SET status = $3::text,
			admin_note = COALESCE($4, admin_note),
			reviewed_by = COALESCE($5, reviewed_by),
			updated_at = NOW(),
			processed_at = CASE WHEN $3::text IN ('COMPLETED', 'FAILED', 'CANCELLED') THEN NOW() ELSE processed_at END
		WHERE id = $1 AND status = $2`,
		arg.ID, arg.From, arg.To, arg.AdminNote, arg.ReviewedBy)
}

func (q *Queries) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return collect(rows, scanWithdrawal)
}

func (q *Queries) ListWithdrawalsByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int32) ([]models.WithdrawalRequest, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawal_requests
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals by status: %w", err)
	}
	return collect(rows, scanWithdrawal)
}

// ClaimWithdrawalsForPayout marks a batch of approved requests as handed to
// the payout rail. Concurrent workers skip each other's rows; claims older
// than StaleBefore are picked up again.
func (q *Queries) ClaimWithdrawalsForPayout(ctx context.Context, arg ClaimWithdrawalsParams) ([]models.WithdrawalRequest, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE withdrawal_requests
		SET payout_claimed_at = NOW(), payout_attempts = payout_attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM withdrawal_requests
			WHERE status = 'PROCESSING'
				AND payout_ref IS NULL
				AND payout_attempts < $2
				AND (payout_claimed_at IS NULL OR payout_claimed_at < $3)
			ORDER BY priority DESC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+withdrawalColumns, arg.Limit, arg.MaxAttempts, arg.StaleBefore)
	if err != nil {
		return nil, fmt.Errorf("claim withdrawals for payout: %w", err)
	}
	return collect(rows, scanWithdrawal)
}

// RecordPayoutResult stores the rail reference or the failure reason and
// releases the claim.
func (q *Queries) RecordPayoutResult(ctx context.Context, id uuid.UUID, payoutRef, payoutErr *string) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE withdrawal_requests
		SET payout_ref = $2, payout_error = $3, payout_claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'PROCESSING' AND payout_ref IS NULL`, id, payoutRef, payoutErr)
}

func (q *Queries) WithdrawalStatsByUser(ctx context.Context, userID uuid.UUID) ([]WithdrawalStat, error) {
	rows, err := q.db.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount_micros), 0)::BIGINT
		FROM withdrawal_requests
		WHERE user_id = $1
		GROUP BY status
		ORDER BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("withdrawal stats: %w", err)
	}
	return collect(rows, func(row rowScanner) (WithdrawalStat, error) {
		var s WithdrawalStat
		err := row.Scan(&s.Status, &s.Count, &s.TotalMicros)
		return s, err
	})
}
