package memstore

import (
	"context"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
)

func (q *Queries) CreateWallet(_ context.Context, w *models.Wallet) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.users[w.UserID]; !ok {
		return foreignKeyViolation("wallets_user_id_fkey")
	}
	for _, existing := range st.wallets {
		if existing.UserID == w.UserID {
			return uniqueViolation("wallets_user_id_key")
		}
	}
	w.BalanceMicros, w.PendingWithdrawalsMicros, w.IsActive = 0, 0, true
	w.CreatedAt, w.UpdatedAt = now(), now()
	st.wallets[w.ID] = *w
	st.walletOrder = append(st.walletOrder, w.ID)
	return nil
}

func (q *Queries) getWallet(match func(models.Wallet) bool) (models.Wallet, error) {
	st, done := q.begin()
	defer done()
	for _, w := range st.wallets {
		if match(w) {
			return w, nil
		}
	}
	return models.Wallet{}, errNoRows()
}

func (q *Queries) GetWallet(_ context.Context, id uuid.UUID) (models.Wallet, error) {
	return q.getWallet(func(w models.Wallet) bool { return w.ID == id })
}

func (q *Queries) GetWalletByUser(_ context.Context, userID uuid.UUID) (models.Wallet, error) {
	return q.getWallet(func(w models.Wallet) bool { return w.UserID == userID })
}

func (q *Queries) GetWalletForUpdate(_ context.Context, id uuid.UUID) (models.Wallet, error) {
	return q.getWallet(func(w models.Wallet) bool { return w.ID == id })
}

func (q *Queries) GetWalletByUserForUpdate(_ context.Context, userID uuid.UUID) (models.Wallet, error) {
	return q.getWallet(func(w models.Wallet) bool { return w.UserID == userID })
}

func (q *Queries) ApplyWalletDelta(_ context.Context, id uuid.UUID, balanceDelta, pendingDelta int64) (int64, error) {
	st, done := q.begin()
	defer done()
	w, ok := st.wallets[id]
	if !ok {
		return 0, nil
	}
	balance := w.BalanceMicros + balanceDelta
	pending := w.PendingWithdrawalsMicros + pendingDelta
	if balance < 0 || pending < 0 || pending > balance {
		return 0, nil
	}
	w.BalanceMicros, w.PendingWithdrawalsMicros = balance, pending
	w.UpdatedAt = now()
	st.wallets[id] = w
	return 1, nil
}

func (q *Queries) SetWalletActive(_ context.Context, id uuid.UUID, active bool) (int64, error) {
	st, done := q.begin()
	defer done()
	w, ok := st.wallets[id]
	if !ok {
		return 0, nil
	}
	w.IsActive = active
	w.UpdatedAt = now()
	st.wallets[id] = w
	return 1, nil
}

func (q *Queries) ListWalletIDs(_ context.Context) ([]uuid.UUID, error) {
	st, done := q.begin()
	defer done()
	return cloneSlice(st.walletOrder), nil
}

func (q *Queries) InsertWalletTransaction(_ context.Context, t *models.Transaction) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.wallets[t.WalletID]; !ok {
		return foreignKeyViolation("wallet_transactions_wallet_id_fkey")
	}
	for _, existing := range st.transactions {
		if existing.WalletID == t.WalletID && existing.Reference == t.Reference {
			return uniqueViolation("uq_wallet_transactions_reference")
		}
	}
	t.CreatedAt = now()
	st.transactions = append(st.transactions, *t)
	return nil
}

func matchTransaction(t models.Transaction, f repository.TransactionFilter) bool {
	if t.WalletID != f.WalletID {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.From != nil && t.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (q *Queries) ListWalletTransactions(_ context.Context, f repository.TransactionFilter) ([]models.Transaction, error) {
	st, done := q.begin()
	defer done()
	var out []models.Transaction
	for _, t := range st.transactions {
		if matchTransaction(t, f) {
			out = append(out, t)
		}
	}
	if !f.Asc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return page(out, f.Limit, f.Offset), nil
}

func (q *Queries) CountWalletTransactions(_ context.Context, f repository.TransactionFilter) (int64, error) {
	st, done := q.begin()
	defer done()
	var n int64
	for _, t := range st.transactions {
		if matchTransaction(t, f) {
			n++
		}
	}
	return n, nil
}

func (q *Queries) SumCompletedTransactions(_ context.Context, walletID uuid.UUID) (int64, error) {
	st, done := q.begin()
	defer done()
	var sum int64
	for _, t := range st.transactions {
		if t.WalletID == walletID && t.Status == domain.TxStatusCompleted {
			sum += t.AmountMicros
		}
	}
	return sum, nil
}

func (q *Queries) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.wallets[w.WalletID]; !ok {
		return foreignKeyViolation("withdrawal_requests_wallet_id_fkey")
	}
	for _, existing := range st.withdrawals {
		if existing.WalletID == w.WalletID && existing.Status.Open() {
			return uniqueViolation("uq_withdrawal_requests_open_wallet")
		}
	}
	w.CreatedAt, w.UpdatedAt = now(), now()
	st.withdrawals[w.ID] = *w
	st.wdOrder = append(st.wdOrder, w.ID)
	return nil
}

func (q *Queries) getWithdrawal(id uuid.UUID) (models.WithdrawalRequest, error) {
	st, done := q.begin()
	defer done()
	w, ok := st.withdrawals[id]
	if !ok {
		return models.WithdrawalRequest{}, errNoRows()
	}
	return w, nil
}

func (q *Queries) GetWithdrawal(_ context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	return q.getWithdrawal(id)
}

func (q *Queries) GetWithdrawalForUpdate(_ context.Context, id uuid.UUID) (models.WithdrawalRequest, error) {
	return q.getWithdrawal(id)
}

func (q *Queries) CountOpenWithdrawals(_ context.Context, walletID uuid.UUID) (int64, error) {
	st, done := q.begin()
	defer done()
	var n int64
	for _, w := range st.withdrawals {
		if w.WalletID == walletID && w.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (q *Queries) UpdateWithdrawalStatus(_ context.Context, arg repository.UpdateWithdrawalStatusParams) (int64, error) {
	st, done := q.begin()
	defer done()
	w, ok := st.withdrawals[arg.ID]
	if !ok || w.Status != arg.From {
		return 0, nil
	}
	ts := now()
	w.Status = arg.To
	if arg.AdminNote != nil {
		note := *arg.AdminNote
		w.AdminNote = &note
	}
	if arg.ReviewedBy != nil {
		by := *arg.ReviewedBy
		w.ReviewedBy = &by
	}
	if !arg.To.Open() {
		w.ProcessedAt = &ts
	}
	w.UpdatedAt = ts
	st.withdrawals[arg.ID] = w
	return 1, nil
}

func (q *Queries) listWithdrawals(match func(models.WithdrawalRequest) bool) []models.WithdrawalRequest {
	st, done := q.begin()
	defer done()
	var out []models.WithdrawalRequest
	for _, id := range st.wdOrder {
		if w := st.withdrawals[id]; match(w) {
			out = append(out, w)
		}
	}
	return out
}

func (q *Queries) ListWithdrawalsByUser(_ context.Context, userID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error) {
	out := q.listWithdrawals(func(w models.WithdrawalRequest) bool { return w.UserID == userID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return page(out, limit, offset), nil
}

func byPriority(out []models.WithdrawalRequest) {
	// Stable keeps creation order within a priority.
	sortStable(out, func(a, b models.WithdrawalRequest) bool { return a.Priority > b.Priority })
}

func (q *Queries) ListWithdrawalsByStatus(_ context.Context, status domain.WithdrawalStatus, limit, offset int32) ([]models.WithdrawalRequest, error) {
	out := q.listWithdrawals(func(w models.WithdrawalRequest) bool { return w.Status == status })
	byPriority(out)
	return page(out, limit, offset), nil
}

func (q *Queries) ClaimWithdrawalsForPayout(_ context.Context, arg repository.ClaimWithdrawalsParams) ([]models.WithdrawalRequest, error) {
	st, done := q.begin()
	defer done()
	var candidates []models.WithdrawalRequest
	for _, id := range st.wdOrder {
		w := st.withdrawals[id]
		if w.Status != domain.WithdrawalProcessing || w.PayoutRef != nil || w.PayoutAttempts >= arg.MaxAttempts {
			continue
		}
		if w.PayoutClaimedAt != nil && !w.PayoutClaimedAt.Before(arg.StaleBefore) {
			continue
		}
		candidates = append(candidates, w)
	}
	byPriority(candidates)
	candidates = page(candidates, arg.Limit, 0)

	ts := now()
	for i := range candidates {
		w := candidates[i]
		claimedAt := ts
		w.PayoutClaimedAt = &claimedAt
		w.PayoutAttempts++
		w.UpdatedAt = ts
		st.withdrawals[w.ID] = w
		candidates[i] = w
	}
	return candidates, nil
}

func (q *Queries) RecordPayoutResult(_ context.Context, id uuid.UUID, payoutRef, payoutErr *string) (int64, error) {
	st, done := q.begin()
	defer done()
	w, ok := st.withdrawals[id]
	if !ok || w.Status != domain.WithdrawalProcessing || w.PayoutRef != nil {
		return 0, nil
	}
	w.PayoutRef = copyString(payoutRef)
	w.PayoutError = copyString(payoutErr)
	w.PayoutClaimedAt = nil
	w.UpdatedAt = now()
	st.withdrawals[id] = w
	return 1, nil
}

func (q *Queries) WithdrawalStatsByUser(_ context.Context, userID uuid.UUID) ([]repository.WithdrawalStat, error) {
	all := q.listWithdrawals(func(w models.WithdrawalRequest) bool { return w.UserID == userID })
	agg := map[domain.WithdrawalStatus]*repository.WithdrawalStat{}
	var order []domain.WithdrawalStatus
	for _, w := range all {
		s, ok := agg[w.Status]
		if !ok {
			s = &repository.WithdrawalStat{Status: w.Status}
			agg[w.Status] = s
			order = append(order, w.Status)
		}
		s.Count++
		s.TotalMicros += w.AmountMicros
	}
	sortStable(order, func(a, b domain.WithdrawalStatus) bool { return a < b })
	out := make([]repository.WithdrawalStat, 0, len(order))
	for _, status := range order {
		out = append(out, *agg[status])
	}
	return out, nil
}

func (q *Queries) InsertAuditLog(_ context.Context, arg repository.InsertAuditLogParams) error {
	st, done := q.begin()
	defer done()
	st.audit = append(st.audit, AuditEntry{InsertAuditLogParams: arg, CreatedAt: now()})
	return nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
