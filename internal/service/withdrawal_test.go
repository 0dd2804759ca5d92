package service

import (
	"errors"
	"testing"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDestination = []byte(`{"iban":"FR7630006000011234567890189","holder":"Jean Dupont"}`)

func (f *fixture) request(t *testing.T, userID uuid.UUID, amount int64) models.WithdrawalRequest {
	t.Helper()
	req, err := f.withdrawals.RequestWithdrawal(f.ctx, userID, RequestWithdrawalInput{
		AmountMicros: amount,
		Method:       domain.MethodBankTransfer,
		Destination:  testDestination,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) withdrawal(t *testing.T, id uuid.UUID) models.WithdrawalRequest {
	t.Helper()
	w, err := f.store.Queries().GetWithdrawal(f.ctx, id)
	require.NoError(t, err)
	return w
}

func TestRequestWithdrawalInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(50))
	auditBefore := len(f.store.AuditEntries())

	_, err := f.withdrawals.RequestWithdrawal(f.ctx, u, RequestWithdrawalInput{
		AmountMicros: units(60),
		Method:       domain.MethodBankTransfer,
		Destination:  testDestination,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	w := f.wallet(t, u)
	assert.Equal(t, units(50), w.BalanceMicros)
	assert.Zero(t, w.PendingWithdrawalsMicros)
	assert.Len(t, f.store.AuditEntries(), auditBefore)

	mine, err := f.withdrawals.ListMine(f.ctx, u, Page{})
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestRequestWithdrawalThenFailReleasesReservation(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(50))

	req := f.request(t, u, units(30))
	assert.Equal(t, domain.WithdrawalPending, req.Status)
	assert.Equal(t, testCurrency, req.Currency)
	assert.False(t, req.ReviewRequired)
	assert.Zero(t, req.Priority)

	w := f.wallet(t, u)
	assert.Equal(t, units(50), w.BalanceMicros)
	assert.Equal(t, units(30), w.PendingWithdrawalsMicros)
	assert.Equal(t, units(20), w.AvailableMicros)

	failed, err := f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "failed", "bank rejected the IBAN")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, failed.Status)
	require.NotNil(t, failed.AdminNote)
	assert.Equal(t, "bank rejected the IBAN", *failed.AdminNote)

	w = f.wallet(t, u)
	assert.Equal(t, units(50), w.BalanceMicros)
	assert.Zero(t, w.PendingWithdrawalsMicros)
	assert.NotNil(t, f.withdrawal(t, req.ID).ProcessedAt)
}

func TestRequestWithdrawalValidation(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(50))

	cases := map[string]RequestWithdrawalInput{
		"zero amount":       {AmountMicros: 0, Method: domain.MethodBankTransfer, Destination: testDestination},
		"below minimum":     {AmountMicros: units(5), Method: domain.MethodBankTransfer, Destination: testDestination},
		"unknown method":    {AmountMicros: units(20), Method: "CHEQUE", Destination: testDestination},
		"no destination":    {AmountMicros: units(20), Method: domain.MethodBankTransfer},
		"array destination": {AmountMicros: units(20), Method: domain.MethodBankTransfer, Destination: []byte(`["FR76"]`)},
		"broken json":       {AmountMicros: units(20), Method: domain.MethodBankTransfer, Destination: []byte(`{"iban":`)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.withdrawals.RequestWithdrawal(f.ctx, u, in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Zero(t, f.wallet(t, u).PendingWithdrawalsMicros)

	// Methods are case-insensitive.
	req, err := f.withdrawals.RequestWithdrawal(f.ctx, u, RequestWithdrawalInput{
		AmountMicros: units(20),
		Method:       "stripe_connect",
		Destination:  []byte(`{"account":"acct_123"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodStripeConnect, req.PreferredMethod)
}

func TestOneOpenWithdrawalPerWallet(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	first := f.request(t, u, units(20))

	_, err := f.withdrawals.RequestWithdrawal(f.ctx, u, RequestWithdrawalInput{
		AmountMicros: units(20),
		Method:       domain.MethodBankTransfer,
		Destination:  testDestination,
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, units(20), f.wallet(t, u).PendingWithdrawalsMicros)

	_, err = f.withdrawals.Review(f.ctx, f.admin, first.ID, domain.DecisionApprove, "")
	require.NoError(t, err)
	_, err = f.withdrawals.RequestWithdrawal(f.ctx, u, RequestWithdrawalInput{
		AmountMicros: units(20),
		Method:       domain.MethodBankTransfer,
		Destination:  testDestination,
	})
	require.ErrorIs(t, err, domain.ErrConflict, "a PROCESSING request is still open")

	_, err = f.withdrawals.Finalize(f.ctx, f.admin, first.ID, string(domain.WithdrawalCompleted), "")
	require.NoError(t, err)
	f.request(t, u, units(20))
}

func TestWithdrawalApproveAndComplete(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	req := f.request(t, u, units(40))

	_, err := f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "COMPLETED", "")
	require.ErrorIs(t, err, domain.ErrConflict, "completion needs an approved request")

	approved, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, "approve", "")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalProcessing, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, f.admin, *approved.ReviewedBy)

	_, err = f.withdrawals.Cancel(f.ctx, u, req.ID)
	require.ErrorIs(t, err, domain.ErrConflict)

	done, err := f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "COMPLETED", "paid")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, done.Status)

	w := f.wallet(t, u)
	assert.Equal(t, units(60), w.BalanceMicros)
	assert.Zero(t, w.PendingWithdrawalsMicros)

	stmt, err := f.ledger.GetStatement(f.ctx, u, StatementFilter{Type: domain.TxTypeWithdrawal}, Page{})
	require.NoError(t, err)
	require.Len(t, stmt.Items, 1)
	assert.Equal(t, -units(40), stmt.Items[0].AmountMicros)
	assert.Equal(t, "withdrawal:"+req.ID.String(), stmt.Items[0].Reference)

	_, err = f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "FAILED", "")
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, units(60), f.wallet(t, u).BalanceMicros)
}

func TestWithdrawalReject(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	req := f.request(t, u, units(40))

	_, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionReject, "  ")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.withdrawals.Review(f.ctx, f.admin, req.ID, "MAYBE", "")
	require.ErrorIs(t, err, domain.ErrValidation)

	rejected, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionReject, "destination account closed")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCancelled, rejected.Status)

	w := f.wallet(t, u)
	assert.Equal(t, units(100), w.BalanceMicros)
	assert.Zero(t, w.PendingWithdrawalsMicros)

	_, err = f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionApprove, "")
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.withdrawals.Review(f.ctx, f.admin, uuid.New(), domain.DecisionApprove, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithdrawalCancelByOwner(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	other := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	req := f.request(t, u, units(40))

	_, err := f.withdrawals.Cancel(f.ctx, other, req.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := f.withdrawals.Cancel(f.ctx, u, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCancelled, cancelled.Status)
	assert.Zero(t, f.wallet(t, u).PendingWithdrawalsMicros)
}

func TestWithdrawalReviewQueueOrdering(t *testing.T) {
	f := newFixture(t)
	small := f.approvedDeliverer(t)
	large := f.approvedDeliverer(t)
	huge := f.approvedDeliverer(t)
	f.fund(t, small, units(100))
	f.fund(t, large, units(2000))
	f.fund(t, huge, units(2000))

	a := f.request(t, small, units(50))
	b := f.request(t, large, units(600))
	c := f.request(t, huge, units(1500))
	assert.Equal(t, int32(1), b.Priority)
	assert.False(t, b.ReviewRequired)
	assert.Equal(t, int32(1), c.Priority)
	assert.True(t, c.ReviewRequired)

	queue, err := f.withdrawals.ListPending(f.ctx, Page{})
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, []uuid.UUID{b.ID, c.ID, a.ID}, []uuid.UUID{queue[0].ID, queue[1].ID, queue[2].ID})
}

func TestWithdrawalStats(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))

	first := f.request(t, u, units(20))
	_, err := f.withdrawals.Cancel(f.ctx, u, first.ID)
	require.NoError(t, err)
	f.request(t, u, units(30))

	stats, err := f.withdrawals.Stats(f.ctx, u)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	byStatus := map[domain.WithdrawalStatus]int64{}
	for _, s := range stats {
		byStatus[s.Status] = s.TotalMicros
		assert.Equal(t, int64(1), s.Count)
	}
	assert.Equal(t, units(20), byStatus[domain.WithdrawalCancelled])
	assert.Equal(t, units(30), byStatus[domain.WithdrawalPending])
}

func TestProcessPayouts(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	req := f.request(t, u, units(40))

	// Pending requests are not sent to the rail.
	require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))
	assert.Zero(t, f.rail.callCount())

	_, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionApprove, "")
	require.NoError(t, err)

	require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))
	assert.Equal(t, 1, f.rail.callCount())

	got := f.withdrawal(t, req.ID)
	require.NotNil(t, got.PayoutRef)
	assert.Equal(t, "RAIL-1", *got.PayoutRef)
	assert.Equal(t, int32(1), got.PayoutAttempts)
	assert.Equal(t, domain.WithdrawalProcessing, got.Status, "an admin still finalizes the request")

	// Already initiated: nothing more to send.
	require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))
	assert.Equal(t, 1, f.rail.callCount())

	var initiated bool
	for _, e := range f.store.AuditEntries() {
		if e.EntityID == req.ID && e.Action == "payout_initiated" {
			initiated = true
		}
	}
	assert.True(t, initiated)
}

func TestProcessPayoutsRetriesUntilMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.rail.err = errors.New("rail unavailable")
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	req := f.request(t, u, units(40))
	_, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionApprove, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))
	}
	assert.Equal(t, 3, f.rail.callCount())

	got := f.withdrawal(t, req.ID)
	assert.Nil(t, got.PayoutRef)
	require.NotNil(t, got.PayoutError)
	assert.Equal(t, "rail unavailable", *got.PayoutError)
	assert.Equal(t, int32(3), got.PayoutAttempts)

	// The reservation stays until an admin decides.
	assert.Equal(t, units(40), f.wallet(t, u).PendingWithdrawalsMicros)
	_, err = f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "FAILED", "rail gave up")
	require.NoError(t, err)
	assert.Zero(t, f.wallet(t, u).PendingWithdrawalsMicros)
}

func TestFinalizeRefusedWhilePayoutInFlight(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(50))
	req := f.request(t, u, units(50))
	_, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionApprove, "")
	require.NoError(t, err)

	var finalizeErr error
	f.rail.during = func() {
		_, finalizeErr = f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "FAILED", "looks stuck")
	}
	require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))
	require.Equal(t, 1, f.rail.callCount())
	require.ErrorIs(t, finalizeErr, domain.ErrConflict)

	got := f.withdrawal(t, req.ID)
	assert.Equal(t, domain.WithdrawalProcessing, got.Status)
	require.NotNil(t, got.PayoutRef)
	assert.Nil(t, got.PayoutClaimedAt)

	// The sent funds stay reserved and cannot be withdrawn a second time.
	w := f.wallet(t, u)
	assert.Equal(t, units(50), w.PendingWithdrawalsMicros)
	assert.Zero(t, w.AvailableMicros)
	_, err = f.withdrawals.RequestWithdrawal(f.ctx, u, RequestWithdrawalInput{
		AmountMicros: units(30),
		Method:       domain.MethodBankTransfer,
		Destination:  testDestination,
	})
	assert.Error(t, err)

	// Once the rail has answered the admin can settle it.
	f.rail.during = nil
	done, err := f.withdrawals.Finalize(f.ctx, f.admin, req.ID, "COMPLETED", "")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalCompleted, done.Status)
	assert.Zero(t, f.wallet(t, u).BalanceMicros)
}

func TestProcessPayoutsUsesWithdrawalAsRailKey(t *testing.T) {
	f := newFixture(t)
	u := f.approvedDeliverer(t)
	f.fund(t, u, units(100))
	req := f.request(t, u, units(40))
	_, err := f.withdrawals.Review(f.ctx, f.admin, req.ID, domain.DecisionApprove, "")
	require.NoError(t, err)

	f.rail.err = errors.New("rail unavailable")
	require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))
	f.rail.err = nil
	require.NoError(t, f.withdrawals.ProcessPayouts(f.ctx, 10))

	require.Len(t, f.rail.keys, 2)
	assert.Equal(t, "withdrawal:"+req.ID.String(), f.rail.keys[0])
	assert.Equal(t, f.rail.keys[0], f.rail.keys[1])
}
