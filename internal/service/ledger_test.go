package service

import (
	"testing"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) debit(t *testing.T, walletID uuid.UUID, amount int64, txType string) error {
	t.Helper()
	return f.store.RunInTx(f.ctx, func(qtx repository.Querier) error {
		_, err := f.ledger.Debit(f.ctx, qtx, walletID, amount, txType, "test:"+uuid.NewString())
		return err
	})
}

func TestLedgerCreditAndDebit(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleClient)
	f.fund(t, u.ID, units(50))

	w := f.wallet(t, u.ID)
	assert.Equal(t, units(50), w.BalanceMicros)
	assert.Equal(t, testCurrency, w.Currency)
	assert.True(t, w.IsActive)

	require.NoError(t, f.debit(t, w.WalletID, units(20), domain.TxTypePayment))
	assert.Equal(t, units(30), f.wallet(t, u.ID).BalanceMicros)

	err := f.debit(t, w.WalletID, units(31), domain.TxTypePayment)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, units(30), f.wallet(t, u.ID).BalanceMicros)
}

func TestLedgerRejectsWrongTypesAndAmounts(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleClient)
	w := f.wallet(t, u.ID)

	err := f.store.RunInTx(f.ctx, func(qtx repository.Querier) error {
		_, err := f.ledger.Credit(f.ctx, qtx, w.WalletID, units(1), domain.TxTypePayment, "x")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = f.store.RunInTx(f.ctx, func(qtx repository.Querier) error {
		_, err := f.ledger.Credit(f.ctx, qtx, w.WalletID, -5, domain.TxTypeDeposit, "x")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.ErrorIs(t, f.debit(t, w.WalletID, units(1), domain.TxTypeDeposit), domain.ErrValidation)
	assert.ErrorIs(t, f.debit(t, w.WalletID, 0, domain.TxTypePayment), domain.ErrValidation)
}

func TestLedgerReferenceIsUniquePerWallet(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleClient)
	w := f.wallet(t, u.ID)

	credit := func() error {
		return f.store.RunInTx(f.ctx, func(qtx repository.Querier) error {
			_, err := f.ledger.Credit(f.ctx, qtx, w.WalletID, units(5), domain.TxTypeDeposit, "topup:1")
			return err
		})
	}
	require.NoError(t, credit())
	require.ErrorIs(t, credit(), domain.ErrConflict)
	assert.Equal(t, units(5), f.wallet(t, u.ID).BalanceMicros)
}

func TestLedgerWithdrawalDebitLimitedToAvailable(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleDeliverer)
	f.fund(t, u.ID, units(100))
	w := f.wallet(t, u.ID)

	err := f.store.RunInTx(f.ctx, func(qtx repository.Querier) error {
		_, err := f.ledger.Reserve(f.ctx, qtx, w.WalletID, units(80))
		return err
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.debit(t, w.WalletID, units(30), domain.TxTypeWithdrawal), domain.ErrInsufficientFunds)
	// Other debits may not dip below the reserved amount either.
	assert.ErrorIs(t, f.debit(t, w.WalletID, units(30), domain.TxTypePayment), domain.ErrInsufficientFunds)
	require.NoError(t, f.debit(t, w.WalletID, units(20), domain.TxTypeWithdrawal))

	got := f.wallet(t, u.ID)
	assert.Equal(t, units(80), got.BalanceMicros)
	assert.Equal(t, units(80), got.PendingWithdrawalsMicros)
	assert.Zero(t, got.AvailableMicros)
}

func TestLedgerReservationLifecycle(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleDeliverer)
	f.fund(t, u.ID, units(100))
	w := f.wallet(t, u.ID)

	run := func(fn func(qtx repository.Querier) error) error { return f.store.RunInTx(f.ctx, fn) }

	require.NoError(t, run(func(qtx repository.Querier) error {
		_, err := f.ledger.Reserve(f.ctx, qtx, w.WalletID, units(60))
		return err
	}))
	require.ErrorIs(t, run(func(qtx repository.Querier) error {
		_, err := f.ledger.Reserve(f.ctx, qtx, w.WalletID, units(41))
		return err
	}), domain.ErrInsufficientFunds)

	require.NoError(t, run(func(qtx repository.Querier) error {
		return f.ledger.ReleaseReservation(f.ctx, qtx, w.WalletID, units(10))
	}))
	assert.Equal(t, units(50), f.wallet(t, u.ID).PendingWithdrawalsMicros)

	require.NoError(t, run(func(qtx repository.Querier) error {
		_, err := f.ledger.SettleReservation(f.ctx, qtx, w.WalletID, units(50), "withdrawal:test")
		return err
	}))
	got := f.wallet(t, u.ID)
	assert.Equal(t, units(50), got.BalanceMicros)
	assert.Zero(t, got.PendingWithdrawalsMicros)

	require.ErrorIs(t, run(func(qtx repository.Querier) error {
		_, err := f.ledger.SettleReservation(f.ctx, qtx, w.WalletID, units(1), "withdrawal:again")
		return err
	}), domain.ErrInsufficientFunds)
}

func TestLedgerStatement(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleClient)
	f.fund(t, u.ID, units(10))
	f.fund(t, u.ID, units(20))
	w := f.wallet(t, u.ID)
	require.NoError(t, f.debit(t, w.WalletID, units(5), domain.TxTypePayment))

	stmt, err := f.ledger.GetStatement(f.ctx, u.ID, StatementFilter{}, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stmt.Total)
	require.Len(t, stmt.Items, 3)
	assert.Equal(t, domain.TxTypePayment, stmt.Items[0].Type)
	assert.Equal(t, -units(5), stmt.Items[0].AmountMicros)

	asc, err := f.ledger.GetStatement(f.ctx, u.ID, StatementFilter{Order: "ASC"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, units(10), asc.Items[0].AmountMicros)

	deposits, err := f.ledger.GetStatement(f.ctx, u.ID, StatementFilter{Type: domain.TxTypeDeposit}, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deposits.Total)
	for _, tx := range deposits.Items {
		assert.Equal(t, domain.TxTypeDeposit, tx.Type)
	}

	paged, err := f.ledger.GetStatement(f.ctx, u.ID, StatementFilter{}, Page{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	assert.Equal(t, int32(2), paged.Page)
	require.Len(t, paged.Items, 1)

	future := time.Now().Add(time.Hour)
	empty, err := f.ledger.GetStatement(f.ctx, u.ID, StatementFilter{From: &future}, Page{})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Equal(t, []models.Transaction{}, empty.Items)
}

func TestLedgerStatementValidation(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleClient)
	now := time.Now()
	earlier := now.Add(-time.Hour)

	cases := []StatementFilter{
		{Type: "BONUS"},
		{Order: "sideways"},
		{From: &now, To: &earlier},
	}
	for _, filter := range cases {
		_, err := f.ledger.GetStatement(f.ctx, u.ID, filter, Page{})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	_, err := f.ledger.GetStatement(f.ctx, uuid.New(), StatementFilter{}, Page{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedgerBalanceMatchesHistory(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, domain.RoleClient)
	f.fund(t, u.ID, units(7))
	f.fund(t, u.ID, units(3))
	w := f.wallet(t, u.ID)
	require.NoError(t, f.debit(t, w.WalletID, units(4), domain.TxTypePayment))

	sum, err := f.store.Queries().SumCompletedTransactions(f.ctx, w.WalletID)
	require.NoError(t, err)
	assert.Equal(t, f.wallet(t, u.ID).BalanceMicros, sum)
}
