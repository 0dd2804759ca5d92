package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
)

// LedgerService owns wallet balances. Every balance change writes exactly one
// transaction row in the same database transaction.
type LedgerService struct {
	store QueryStore
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{store: store}
}

// WalletSummary is the caller-facing view of a wallet.
type WalletSummary struct {
	WalletID                 uuid.UUID `json:"wallet_id"`
	BalanceMicros            int64     `json:"balance_micros"`
	PendingWithdrawalsMicros int64     `json:"pending_withdrawals_micros"`
	AvailableMicros          int64     `json:"available_micros"`
	Currency                 string    `json:"currency"`
	IsActive                 bool      `json:"is_active"`
}

// StatementFilter narrows a wallet statement. Order is "asc" or "desc".
type StatementFilter struct {
	Type  string
	From  *time.Time
	To    *time.Time
	Order string
}

type Statement struct {
	Items []models.Transaction `json:"items"`
	Total int64                `json:"total"`
	Page  int32                `json:"page"`
	Limit int32                `json:"limit"`
}

// EnsureWallet creates the user's wallet if it does not exist yet.
func (s *LedgerService) EnsureWallet(ctx context.Context, qtx repository.Querier, userID uuid.UUID, currency string) (models.Wallet, error) {
	w, err := qtx.GetWalletByUser(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !repository.IsNotFound(err) {
		return models.Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	w = models.Wallet{ID: uuid.New(), UserID: userID, Currency: currency}
	if err := qtx.CreateWallet(ctx, &w); err != nil {
		return models.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

// Credit adds amount to the wallet balance. txType must be DEPOSIT or REFUND.
func (s *LedgerService) Credit(ctx context.Context, qtx repository.Querier, walletID uuid.UUID, amount int64, txType, reference string) (models.Transaction, error) {
	if !domain.IsCreditType(txType) {
		return models.Transaction{}, fmt.Errorf("%w: %s is not a credit type", domain.ErrValidation, txType)
	}
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}
	w, err := s.lockActiveWallet(ctx, qtx, walletID)
	if err != nil {
		return models.Transaction{}, err
	}
	return s.apply(ctx, qtx, w, amount, 0, txType, reference)
}

// Debit removes amount from the wallet balance. A WITHDRAWAL may only spend
// the available balance; other debit types may spend the whole balance.
func (s *LedgerService) Debit(ctx context.Context, qtx repository.Querier, walletID uuid.UUID, amount int64, txType, reference string) (models.Transaction, error) {
	if !domain.IsDebitType(txType) {
		return models.Transaction{}, fmt.Errorf("%w: %s is not a debit type", domain.ErrValidation, txType)
	}
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("%w: debit amount must be positive", domain.ErrValidation)
	}
	w, err := s.lockActiveWallet(ctx, qtx, walletID)
	if err != nil {
		return models.Transaction{}, err
	}
	limit := w.BalanceMicros
	if txType == domain.TxTypeWithdrawal {
		limit = w.Available()
	}
	if amount > limit {
		return models.Transaction{}, fmt.Errorf("%w: requested %d, spendable %d", domain.ErrInsufficientFunds, amount, limit)
	}
	return s.apply(ctx, qtx, w, -amount, 0, txType, reference)
}

// Reserve moves amount of the available balance into pending withdrawals.
func (s *LedgerService) Reserve(ctx context.Context, qtx repository.Querier, walletID uuid.UUID, amount int64) (models.Wallet, error) {
	w, err := s.lockActiveWallet(ctx, qtx, walletID)
	if err != nil {
		return models.Wallet{}, err
	}
	if amount > w.Available() {
		return models.Wallet{}, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientFunds, amount, w.Available())
	}
	if err := applyDelta(ctx, qtx, walletID, 0, amount); err != nil {
		return models.Wallet{}, err
	}
	w.PendingWithdrawalsMicros += amount
	return w, nil
}

// ReleaseReservation returns a pending amount to the available balance.
// Frozen wallets are accepted so a rejected request can still unwind.
func (s *LedgerService) ReleaseReservation(ctx context.Context, qtx repository.Querier, walletID uuid.UUID, amount int64) error {
	if _, err := qtx.GetWalletForUpdate(ctx, walletID); err != nil {
		return notFound(err, "wallet")
	}
	return applyDelta(ctx, qtx, walletID, 0, -amount)
}

// SettleReservation pays out a reserved amount: balance and pending both
// drop by amount and a WITHDRAWAL transaction is written.
func (s *LedgerService) SettleReservation(ctx context.Context, qtx repository.Querier, walletID uuid.UUID, amount int64, reference string) (models.Transaction, error) {
	w, err := s.lockActiveWallet(ctx, qtx, walletID)
	if err != nil {
		return models.Transaction{}, err
	}
	if amount > w.PendingWithdrawalsMicros {
		return models.Transaction{}, fmt.Errorf("%w: settle %d exceeds reserved %d", domain.ErrInsufficientFunds, amount, w.PendingWithdrawalsMicros)
	}
	return s.apply(ctx, qtx, w, -amount, -amount, domain.TxTypeWithdrawal, reference)
}

func (s *LedgerService) lockActiveWallet(ctx context.Context, qtx repository.Querier, walletID uuid.UUID) (models.Wallet, error) {
	w, err := qtx.GetWalletForUpdate(ctx, walletID)
	if err != nil {
		return models.Wallet{}, notFound(err, "wallet")
	}
	if !w.IsActive {
		return models.Wallet{}, fmt.Errorf("%w: wallet %s", domain.ErrWalletInactive, walletID)
	}
	return w, nil
}

func (s *LedgerService) apply(ctx context.Context, qtx repository.Querier, w models.Wallet, balanceDelta, pendingDelta int64, txType, reference string) (models.Transaction, error) {
	if err := applyDelta(ctx, qtx, w.ID, balanceDelta, pendingDelta); err != nil {
		return models.Transaction{}, err
	}
	tx := models.Transaction{
		ID:           uuid.New(),
		WalletID:     w.ID,
		AmountMicros: balanceDelta,
		Type:         txType,
		Status:       domain.TxStatusCompleted,
		Reference:    reference,
	}
	if err := qtx.InsertWalletTransaction(ctx, &tx); err != nil {
		if repository.IsUniqueViolation(err) {
			return models.Transaction{}, fmt.Errorf("%w: reference %s already recorded", domain.ErrConflict, reference)
		}
		return models.Transaction{}, fmt.Errorf("insert wallet transaction: %w", err)
	}
	return tx, nil
}

// applyDelta runs the guarded UPDATE; zero rows means a balance constraint
// would have been violated.
func applyDelta(ctx context.Context, qtx repository.Querier, walletID uuid.UUID, balanceDelta, pendingDelta int64) error {
	rows, err := qtx.ApplyWalletDelta(ctx, walletID, balanceDelta, pendingDelta)
	if err != nil {
		if repository.ErrorCode(err) == repository.CodeCheckViolation {
			return fmt.Errorf("%w: wallet %s", domain.ErrInsufficientFunds, walletID)
		}
		return fmt.Errorf("apply wallet delta: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: wallet %s", domain.ErrInsufficientFunds, walletID)
	}
	return requireExactlyOne(rows, "apply wallet delta")
}

// GetWallet returns the caller's wallet summary.
func (s *LedgerService) GetWallet(ctx context.Context, userID uuid.UUID) (WalletSummary, error) {
	w, err := s.store.Queries().GetWalletByUser(ctx, userID)
	if err != nil {
		return WalletSummary{}, notFound(err, "wallet")
	}
	return summarize(w), nil
}

func summarize(w models.Wallet) WalletSummary {
	return WalletSummary{
		WalletID:                 w.ID,
		BalanceMicros:            w.BalanceMicros,
		PendingWithdrawalsMicros: w.PendingWithdrawalsMicros,
		AvailableMicros:          w.Available(),
		Currency:                 w.Currency,
		IsActive:                 w.IsActive,
	}
}

// GetStatement returns a page of the user's wallet transactions.
func (s *LedgerService) GetStatement(ctx context.Context, userID uuid.UUID, filter StatementFilter, page Page) (Statement, error) {
	if filter.Type != "" && !domain.IsCreditType(filter.Type) && !domain.IsDebitType(filter.Type) {
		return Statement{}, fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, filter.Type)
	}
	order := strings.ToLower(filter.Order)
	if order != "" && order != "asc" && order != "desc" {
		return Statement{}, fmt.Errorf("%w: order must be asc or desc", domain.ErrValidation)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return Statement{}, fmt.Errorf("%w: from is after to", domain.ErrValidation)
	}

	queries := s.store.Queries()
	w, err := queries.GetWalletByUser(ctx, userID)
	if err != nil {
		return Statement{}, notFound(err, "wallet")
	}

	limit, offset := page.normalize()
	f := repository.TransactionFilter{
		WalletID: w.ID,
		Type:     filter.Type,
		From:     filter.From,
		To:       filter.To,
		Asc:      order == "asc",
		Limit:    limit,
		Offset:   offset,
	}
	items, err := queries.ListWalletTransactions(ctx, f)
	if err != nil {
		return Statement{}, fmt.Errorf("list wallet transactions: %w", err)
	}
	total, err := queries.CountWalletTransactions(ctx, f)
	if err != nil {
		return Statement{}, fmt.Errorf("count wallet transactions: %w", err)
	}
	if items == nil {
		items = []models.Transaction{}
	}
	return Statement{Items: items, Total: total, Page: offset/limit + 1, Limit: limit}, nil
}
