package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/ayo6706/delivery-marketplace/internal/storage"
	"github.com/ayo6706/delivery-marketplace/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testCurrency = "EUR"

var testCommissionRate = decimal.RequireFromString("0.15")

type stubRail struct {
	mu    sync.Mutex
	ref   string
	err   error
	calls []int64
	keys  []string
	// during runs while the call is in flight, outside the lock.
	during func()
}

func (r *stubRail) InitiatePayout(_ context.Context, key string, amount int64, currency string, destination json.RawMessage) (string, error) {
	if r.during != nil {
		r.during()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, amount)
	r.keys = append(r.keys, key)
	if r.err != nil {
		return "", r.err
	}
	return r.ref, nil
}

func (r *stubRail) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	ctx           context.Context
	store         *memstore.Store
	files         *storage.MemoryStorage
	limiter       *MemoryAttemptLimiter
	rail          *stubRail
	ledger        *LedgerService
	escrow        *EscrowService
	users         *UserService
	documents     *DocumentService
	announcements *AnnouncementService
	matching      *MatchingService
	handoff       *HandoffService
	withdrawals   *WithdrawalService
	admin         uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	files := storage.NewMemoryStorage()
	limiter := NewMemoryAttemptLimiter(5, 15*time.Minute)
	rail := &stubRail{ref: "RAIL-1"}

	ledger := NewLedgerService(store)
	escrow := NewEscrowService(store, ledger, testCommissionRate, nil)
	f := &fixture{
		ctx:           context.Background(),
		store:         store,
		files:         files,
		limiter:       limiter,
		rail:          rail,
		ledger:        ledger,
		escrow:        escrow,
		users:         NewUserService(store, ledger, testCurrency),
		documents:     NewDocumentService(store, files, nil),
		announcements: NewAnnouncementService(store, testCurrency),
		matching:      NewMatchingService(store, escrow, nil),
		handoff:       NewHandoffService(store, escrow, limiter, nil),
		withdrawals: NewWithdrawalService(store, ledger, rail, nil, WithdrawalConfig{
			MinAmountMicros:    10 * domain.MicrosPerUnit,
			PayoutMaxAttempts:  3,
			PayoutClaimTimeout: time.Minute,
		}, nil),
	}
	f.admin = f.register(t, domain.RoleAdmin).ID
	return f
}

var userSeq struct {
	mu sync.Mutex
	n  int
}

func nextName(role string) string {
	userSeq.mu.Lock()
	defer userSeq.mu.Unlock()
	userSeq.n++
	return fmt.Sprintf("%s-%d", role, userSeq.n)
}

func (f *fixture) register(t *testing.T, role string) models.User {
	t.Helper()
	name := nextName(role)
	reg, err := f.users.Register(f.ctx, RegisterInput{Username: name, Email: name + "@example.com", Role: role})
	require.NoError(t, err)
	return reg.User
}

func (f *fixture) submit(t *testing.T, userID uuid.UUID, docType string) models.Document {
	t.Helper()
	doc, err := f.documents.SubmitDocument(f.ctx, userID, SubmitDocumentInput{
		Type:        docType,
		FileName:    docType + ".pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 " + docType),
	})
	require.NoError(t, err)
	return doc
}

// approvedDeliverer registers a deliverer and approves every required document.
func (f *fixture) approvedDeliverer(t *testing.T) uuid.UUID {
	t.Helper()
	u := f.register(t, domain.RoleDeliverer)
	for _, docType := range domain.RequiredDocuments(domain.RoleDeliverer) {
		doc := f.submit(t, u.ID, docType)
		_, err := f.documents.ReviewDocument(f.ctx, f.admin, doc.ID, domain.DecisionApprove, "")
		require.NoError(t, err)
	}
	p, err := f.documents.GetProfile(f.ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ValidationApproved, p.ValidationStatus)
	return u.ID
}

func (f *fixture) activeAnnouncement(t *testing.T, clientID uuid.UUID, price int64) models.Announcement {
	t.Helper()
	a, err := f.announcements.Create(f.ctx, clientID, CreateAnnouncementInput{
		Title:           "Parcel",
		PickupAddress:   "1 Rue de Rivoli, Paris",
		DeliveryAddress: "10 Avenue Foch, Paris",
		PriceMicros:     price,
		Publish:         true,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) wallet(t *testing.T, userID uuid.UUID) WalletSummary {
	t.Helper()
	w, err := f.ledger.GetWallet(f.ctx, userID)
	require.NoError(t, err)
	return w
}

// fund credits a wallet directly through the ledger.
func (f *fixture) fund(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	w := f.wallet(t, userID)
	err := f.store.RunInTx(f.ctx, func(qtx repository.Querier) error {
		_, err := f.ledger.Credit(f.ctx, qtx, w.WalletID, amount, domain.TxTypeDeposit, "seed:"+uuid.NewString())
		return err
	})
	require.NoError(t, err)
}

func (f *fixture) delivery(t *testing.T, id uuid.UUID) models.Delivery {
	t.Helper()
	d, err := f.store.Queries().GetDelivery(f.ctx, id)
	require.NoError(t, err)
	return d
}

func (f *fixture) announcement(t *testing.T, id uuid.UUID) models.Announcement {
	t.Helper()
	a, err := f.store.Queries().GetAnnouncement(f.ctx, id)
	require.NoError(t, err)
	return a
}

func (f *fixture) payment(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	p, err := f.store.Queries().GetPayment(f.ctx, id)
	require.NoError(t, err)
	return p
}

func units(n int64) int64 { return n * domain.MicrosPerUnit }

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}
