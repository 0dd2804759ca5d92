package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconciliationService verifies that every wallet balance equals the sum of
// its completed transactions.
type ReconciliationService struct {
	store QueryStore
	audit *AuditService
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store, audit: NewAuditService()}
}

// Mismatch describes a wallet whose balance diverged from its history.
type Mismatch struct {
	WalletID        uuid.UUID `json:"wallet_id"`
	BalanceMicros   int64     `json:"balance_micros"`
	ReplayedMicros  int64     `json:"replayed_micros"`
	Currency        string    `json:"currency"`
	AlreadyInactive bool      `json:"already_inactive"`
}

// Run replays every wallet. A mismatched wallet is frozen so no further
// mutation can compound the error; balances are never corrected here.
func (s *ReconciliationService) Run(ctx context.Context) ([]Mismatch, error) {
	ids, err := s.store.Queries().ListWalletIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	var mismatches []Mismatch
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return mismatches, err
		}
		m, err := s.checkWallet(ctx, id)
		if err != nil {
			zap.L().Error("wallet reconciliation failed", zap.Error(err), zap.String("wallet_id", id.String()))
			continue
		}
		if m != nil {
			mismatches = append(mismatches, *m)
		}
	}

	if len(mismatches) == 0 {
		zap.L().Info("ledger balanced", zap.Int("wallets", len(ids)))
	}
	return mismatches, nil
}

func (s *ReconciliationService) checkWallet(ctx context.Context, walletID uuid.UUID) (*Mismatch, error) {
	var mismatch *Mismatch
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		w, err := qtx.GetWalletForUpdate(ctx, walletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		replayed, err := qtx.SumCompletedTransactions(ctx, walletID)
		if err != nil {
			return fmt.Errorf("sum transactions: %w", err)
		}
		if replayed == w.BalanceMicros {
			return nil
		}

		mismatch = &Mismatch{
			WalletID:        w.ID,
			BalanceMicros:   w.BalanceMicros,
			ReplayedMicros:  replayed,
			Currency:        w.Currency,
			AlreadyInactive: !w.IsActive,
		}
		if !w.IsActive {
			return nil
		}
		rows, err := qtx.SetWalletActive(ctx, w.ID, false)
		if err != nil {
			return fmt.Errorf("freeze wallet: %w", err)
		}
		if err := requireExactlyOne(rows, "freeze wallet"); err != nil {
			return err
		}
		metadata, _ := json.Marshal(mismatch)
		return s.audit.Write(ctx, qtx, entityWallet, w.ID, nil, "frozen_by_reconciliation", "active", "inactive", metadata)
	})
	if err != nil {
		return nil, err
	}

	if mismatch != nil && !mismatch.AlreadyInactive {
		observability.IncrementLedgerMismatch(mismatch.Currency)
		zap.L().Error("CRITICAL: wallet balance diverged from ledger, wallet frozen",
			zap.String("wallet_id", mismatch.WalletID.String()),
			zap.Int64("balance_micros", mismatch.BalanceMicros),
			zap.Int64("replayed_micros", mismatch.ReplayedMicros),
		)
	}
	return mismatch, nil
}
