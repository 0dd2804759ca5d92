package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

const walletColumns = `id, user_id, balance_micros, pending_withdrawals_micros, currency, is_active, created_at, updated_at`

func scanWallet(row rowScanner) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.BalanceMicros, &w.PendingWithdrawalsMicros, &w.Currency, &w.IsActive,
		&w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (q *Queries) CreateWallet(ctx context.Context, w *models.Wallet) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, currency, is_active)
		VALUES ($1, $2, $3, TRUE) RETURNING balance_micros, pending_withdrawals_micros, is_active, created_at, updated_at`,
		w.ID, w.UserID, w.Currency).Scan(&w.BalanceMicros, &w.PendingWithdrawalsMicros, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

func (q *Queries) GetWallet(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (q *Queries) GetWalletByUser(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (q *Queries) GetWalletForUpdate(ctx context.Context, id uuid.UUID) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetWalletByUserForUpdate(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

// ApplyWalletDelta adjusts balance and pending reservations. The guard keeps
// balance >= 0 and 0 <= pending <= balance; zero affected rows means the
// delta would break one of those bounds.
func (q *Queries) ApplyWalletDelta(ctx context.Context, id uuid.UUID, balanceDelta, pendingDelta int64) (int64, error) {
	return execRows(ctx, q.db, `
		UPDATE wallets
		SET balance_micros = balance_micros + $2,
			pending_withdrawals_micros = pending_withdrawals_micros + $3,
			updated_at = NOW()
		WHERE id = $1
			AND balance_micros + $2 >= 0
			AND pending_withdrawals_micros + $3 >= 0
			AND pending_withdrawals_micros + $3 <= balance_micros + $2`, id, balanceDelta, pendingDelta)
}

func (q *Queries) SetWalletActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	return execRows(ctx, q.db, `UPDATE wallets SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

func (q *Queries) ListWalletIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT id FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return collect(rows, func(row rowScanner) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
}

func (q *Queries) InsertWalletTransaction(ctx context.Context, t *models.Transaction) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, amount_micros, type, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		t.ID, t.WalletID, t.AmountMicros, t.Type, t.Status, t.Reference).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func transactionWhere(f TransactionFilter) (string, []any) {
	clauses := []string{"wallet_id = $1"}
	args := []any{f.WalletID}
	if f.Type != "" {
		args = append(args, f.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func (q *Queries) ListWalletTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	where, args := transactionWhere(f)
	order := "DESC"
	if f.Asc {
		order = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, wallet_id, amount_micros, type, status, reference, created_at
		FROM wallet_transactions
		WHERE %s
		ORDER BY created_at %s, id %s`, where, order, order)
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return collect(rows, func(row rowScanner) (models.Transaction, error) {
		var t models.Transaction
		err := row.Scan(&t.ID, &t.WalletID, &t.AmountMicros, &t.Type, &t.Status, &t.Reference, &t.CreatedAt)
		return t, err
	})
}

func (q *Queries) CountWalletTransactions(ctx context.Context, f TransactionFilter) (int64, error) {
	where, args := transactionWhere(f)
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM wallet_transactions WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count wallet transactions: %w", err)
	}
	return n, nil
}

func (q *Queries) SumCompletedTransactions(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_micros), 0)::BIGINT
		FROM wallet_transactions
		WHERE wallet_id = $1 AND status = 'COMPLETED'`, walletID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum wallet transactions: %w", err)
	}
	return sum, nil
}
