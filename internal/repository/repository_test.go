//go:build integration

package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, q repository.Querier, role string) models.User {
	t.Helper()
	id := uuid.New()
	u := models.User{
		ID:       id,
		Username: "user_" + id.String()[:8],
		Email:    "user_" + id.String()[:8] + "@example.com",
		Role:     role,
	}
	require.NoError(t, q.CreateUser(context.Background(), &u))
	return u
}

func newWallet(t *testing.T, q repository.Querier, userID uuid.UUID) models.Wallet {
	t.Helper()
	w := models.Wallet{ID: uuid.New(), UserID: userID, Currency: "EUR"}
	require.NoError(t, q.CreateWallet(context.Background(), &w))
	return w
}

func newAnnouncement(t *testing.T, q repository.Querier, clientID uuid.UUID) models.Announcement {
	t.Helper()
	a := models.Announcement{
		ID:              uuid.New(),
		ClientID:        clientID,
		Status:          domain.AnnouncementActive,
		Title:           "Parcel",
		PickupAddress:   "1 Rue A",
		DeliveryAddress: "2 Rue B",
		PriceMicros:     20 * domain.MicrosPerUnit,
		Currency:        "EUR",
	}
	require.NoError(t, q.CreateAnnouncement(context.Background(), &a))
	return a
}

func TestCreateUserAndWallet(t *testing.T) {
	ctx := context.Background()
	q := repository.New(tcPool)

	user := newUser(t, q, domain.RoleDeliverer)
	got, err := q.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)
	assert.Equal(t, domain.RoleDeliverer, got.Role)

	wallet := newWallet(t, q, user.ID)
	dbWallet, err := q.GetWalletByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, dbWallet.ID)
	assert.Zero(t, dbWallet.BalanceMicros)
	assert.True(t, dbWallet.IsActive)

	_, err = q.GetUser(ctx, uuid.New())
	assert.True(t, repository.IsNotFound(err))
}

func TestApplyWalletDeltaGuards(t *testing.T) {
	ctx := context.Background()
	q := repository.New(tcPool)
	user := newUser(t, q, domain.RoleDeliverer)
	wallet := newWallet(t, q, user.ID)

	rows, err := q.ApplyWalletDelta(ctx, wallet.ID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.ApplyWalletDelta(ctx, wallet.ID, -101, 0)
	require.NoError(t, err)
	assert.Zero(t, rows, "balance must not go negative")

	rows, err = q.ApplyWalletDelta(ctx, wallet.ID, 0, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.ApplyWalletDelta(ctx, wallet.ID, -50, 0)
	require.NoError(t, err)
	assert.Zero(t, rows, "pending must stay within balance")

	got, err := q.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.BalanceMicros)
	assert.Equal(t, int64(60), got.PendingWithdrawalsMicros)
	assert.Equal(t, int64(40), got.Available())
}

func TestActiveDeliveryUniquePerAnnouncement(t *testing.T) {
	ctx := context.Background()
	q := repository.New(tcPool)
	client := newUser(t, q, domain.RoleClient)
	d1 := newUser(t, q, domain.RoleDeliverer)
	d2 := newUser(t, q, domain.RoleDeliverer)
	ann := newAnnouncement(t, q, client.ID)

	first := models.Delivery{
		ID: uuid.New(), AnnouncementID: ann.ID, DelivererID: d1.ID, ClientID: client.ID,
		Status: domain.DeliveryAccepted, ValidationCode: "123456", ProposedPriceMicros: ann.PriceMicros,
	}
	require.NoError(t, q.CreateDelivery(ctx, &first))

	second := first
	second.ID = uuid.New()
	second.DelivererID = d2.ID
	err := q.CreateDelivery(ctx, &second)
	require.Error(t, err)
	assert.True(t, repository.IsUniqueViolation(err))

	rows, err := q.UpdateDeliveryStatus(ctx, first.ID, domain.DeliveryAccepted, domain.DeliveryCancelled)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	require.NoError(t, q.CreateDelivery(ctx, &second), "a cancelled delivery frees the announcement")
	active, err := q.GetActiveDeliveryByAnnouncement(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestConcurrentClaimSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := repository.NewStore(tcPool)
	q := store.Queries()
	client := newUser(t, q, domain.RoleClient)
	ann := newAnnouncement(t, q, client.ID)

	const n = 8
	deliverers := make([]models.User, n)
	for i := range deliverers {
		deliverers[i] = newUser(t, q, domain.RoleDeliverer)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(d models.User) {
			defer wg.Done()
			err := store.RunInTx(ctx, func(qtx repository.Querier) error {
				a, err := qtx.GetAnnouncementForUpdate(ctx, ann.ID)
				if err != nil {
					return err
				}
				if a.Status != domain.AnnouncementActive {
					return errors.New("taken")
				}
				del := models.Delivery{
					ID: uuid.New(), AnnouncementID: ann.ID, DelivererID: d.ID, ClientID: client.ID,
					Status: domain.DeliveryAccepted, ValidationCode: "654321", ProposedPriceMicros: a.PriceMicros,
				}
				if err := qtx.CreateDelivery(ctx, &del); err != nil {
					return err
				}
				_, err = qtx.UpdateAnnouncementStatus(ctx, ann.ID, domain.AnnouncementActive, domain.AnnouncementInProgress)
				return err
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(deliverers[i])
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestLatestDocumentPerType(t *testing.T) {
	ctx := context.Background()
	q := repository.New(tcPool)
	user := newUser(t, q, domain.RoleDeliverer)

	old := models.Document{ID: uuid.New(), UserID: user.ID, Type: domain.DocIDCard, Status: domain.DocumentPending,
		StorageKey: "k1", FileName: "id.pdf", ContentType: "application/pdf"}
	require.NoError(t, q.CreateDocument(ctx, &old))
	time.Sleep(5 * time.Millisecond)
	newer := old
	newer.ID = uuid.New()
	newer.StorageKey = "k2"
	require.NoError(t, q.CreateDocument(ctx, &newer))

	latest, err := q.ListLatestDocumentsByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, newer.ID, latest[0].ID)

	rows, err := q.UpdateDocumentReview(ctx, repository.UpdateDocumentReviewParams{
		ID: newer.ID, Status: domain.DocumentApproved, ReviewedBy: user.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = q.UpdateDocumentReview(ctx, repository.UpdateDocumentReviewParams{
		ID: newer.ID, Status: domain.DocumentRejected, ReviewedBy: user.ID,
	})
	require.NoError(t, err)
	assert.Zero(t, rows, "reviewed documents are final")
}

func TestStatementFilterAndSum(t *testing.T) {
	ctx := context.Background()
	q := repository.New(tcPool)
	user := newUser(t, q, domain.RoleDeliverer)
	wallet := newWallet(t, q, user.ID)

	entries := []models.Transaction{
		{ID: uuid.New(), WalletID: wallet.ID, AmountMicros: 500, Type: domain.TxTypeDeposit, Status: domain.TxStatusCompleted, Reference: "a"},
		{ID: uuid.New(), WalletID: wallet.ID, AmountMicros: -200, Type: domain.TxTypeWithdrawal, Status: domain.TxStatusCompleted, Reference: "b"},
		{ID: uuid.New(), WalletID: wallet.ID, AmountMicros: 50, Type: domain.TxTypeRefund, Status: domain.TxStatusCompleted, Reference: "c"},
	}
	for i := range entries {
		require.NoError(t, q.InsertWalletTransaction(ctx, &entries[i]))
	}

	dup := entries[0]
	dup.ID = uuid.New()
	assert.True(t, repository.IsUniqueViolation(q.InsertWalletTransaction(ctx, &dup)))

	sum, err := q.SumCompletedTransactions(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(350), sum)

	deposits, err := q.ListWalletTransactions(ctx, repository.TransactionFilter{WalletID: wallet.ID, Type: domain.TxTypeDeposit})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, "a", deposits[0].Reference)

	page, err := q.ListWalletTransactions(ctx, repository.TransactionFilter{WalletID: wallet.ID, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	total, err := q.CountWalletTransactions(ctx, repository.TransactionFilter{WalletID: wallet.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestClaimWithdrawalsSkipsLockedAndClaimed(t *testing.T) {
	ctx := context.Background()
	q := repository.New(tcPool)
	user := newUser(t, q, domain.RoleDeliverer)
	wallet := newWallet(t, q, user.ID)

	w := models.WithdrawalRequest{
		ID: uuid.New(), WalletID: wallet.ID, UserID: user.ID, AmountMicros: 10 * domain.MicrosPerUnit,
		Currency: "EUR", Status: domain.WithdrawalPending, PreferredMethod: domain.MethodBankTransfer,
		Destination: []byte(`{"iban":"FR76"}`),
	}
	require.NoError(t, q.CreateWithdrawal(ctx, &w))

	second := w
	second.ID = uuid.New()
	assert.True(t, repository.IsUniqueViolation(q.CreateWithdrawal(ctx, &second)), "one open request per wallet")

	rows, err := q.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
		ID: w.ID, From: domain.WithdrawalPending, To: domain.WithdrawalProcessing,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	params := repository.ClaimWithdrawalsParams{Limit: 10, MaxAttempts: 3, StaleBefore: time.Now().Add(-time.Minute)}
	claimed, err := q.ClaimWithdrawalsForPayout(ctx, params)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, int32(1), claimed[0].PayoutAttempts)

	again, err := q.ClaimWithdrawalsForPayout(ctx, params)
	require.NoError(t, err)
	assert.Empty(t, again, "fresh claims are not handed out twice")

	ref := "RAIL-1"
	rows, err = q.RecordPayoutResult(ctx, w.ID, &ref, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	got, err := q.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PayoutRef)
	assert.Equal(t, ref, *got.PayoutRef)
	assert.JSONEq(t, `{"iban":"FR76"}`, string(got.Destination))
}
