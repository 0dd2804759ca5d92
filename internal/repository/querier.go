package repository

import (
	"context"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/google/uuid"
)

// Querier is the data access contract used by services. Methods suffixed
// ForUpdate/ForShare take row locks and are only meaningful inside RunInTx.
// Update methods return the number of affected rows; callers treat anything
// but one as a lost race.
type Querier interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (models.Profile, error)
	GetProfileForUpdate(ctx context.Context, userID uuid.UUID) (models.Profile, error)
	GetProfileForShare(ctx context.Context, userID uuid.UUID) (models.Profile, error)
	UpdateProfileStatus(ctx context.Context, userID uuid.UUID, status domain.ValidationStatus) (int64, error)
	IssueCredential(ctx context.Context, userID uuid.UUID, credentialID string) (int64, error)

	CreateDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (models.Document, error)
	GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (models.Document, error)
	UpdateDocumentReview(ctx context.Context, arg UpdateDocumentReviewParams) (int64, error)
	ListLatestDocumentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	ListDocumentsByStatus(ctx context.Context, status domain.DocumentStatus, limit, offset int32) ([]models.Document, error)

	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	GetAnnouncement(ctx context.Context, id uuid.UUID) (models.Announcement, error)
	GetAnnouncementForUpdate(ctx context.Context, id uuid.UUID) (models.Announcement, error)
	UpdateAnnouncementStatus(ctx context.Context, id uuid.UUID, from, to domain.AnnouncementStatus) (int64, error)
	ListAnnouncementsByStatus(ctx context.Context, status domain.AnnouncementStatus, limit, offset int32) ([]models.Announcement, error)
	ListAnnouncementsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int32) ([]models.Announcement, error)

	CreateDelivery(ctx context.Context, d *models.Delivery) error
	GetDelivery(ctx context.Context, id uuid.UUID) (models.Delivery, error)
	GetDeliveryForUpdate(ctx context.Context, id uuid.UUID) (models.Delivery, error)
	GetActiveDeliveryByAnnouncement(ctx context.Context, announcementID uuid.UUID) (models.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, from, to domain.DeliveryStatus) (int64, error)
	ListDeliveriesByDeliverer(ctx context.Context, delivererID uuid.UUID, limit, offset int32) ([]models.Delivery, error)
	InsertDeliveryLog(ctx context.Context, l *models.DeliveryLog) error
	ListDeliveryLogs(ctx context.Context, deliveryID uuid.UUID) ([]models.DeliveryLog, error)

	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (models.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (models.Payment, error)
	GetPaymentByDelivery(ctx context.Context, deliveryID uuid.UUID) (models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, reason *string) (int64, error)
	CreateCommission(ctx context.Context, c *models.Commission) error

	CreateWallet(ctx context.Context, w *models.Wallet) error
	GetWallet(ctx context.Context, id uuid.UUID) (models.Wallet, error)
	GetWalletByUser(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	GetWalletForUpdate(ctx context.Context, id uuid.UUID) (models.Wallet, error)
	GetWalletByUserForUpdate(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
	ApplyWalletDelta(ctx context.Context, id uuid.UUID, balanceDelta, pendingDelta int64) (int64, error)
	SetWalletActive(ctx context.Context, id uuid.UUID, active bool) (int64, error)
	ListWalletIDs(ctx context.Context) ([]uuid.UUID, error)
	InsertWalletTransaction(ctx context.Context, t *models.Transaction) error
	ListWalletTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error)
	CountWalletTransactions(ctx context.Context, f TransactionFilter) (int64, error)
	SumCompletedTransactions(ctx context.Context, walletID uuid.UUID) (int64, error)

	CreateWithdrawal(ctx context.Context, w *models.WithdrawalRequest) error
	GetWithdrawal(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error)
	GetWithdrawalForUpdate(ctx context.Context, id uuid.UUID) (models.WithdrawalRequest, error)
	CountOpenWithdrawals(ctx context.Context, walletID uuid.UUID) (int64, error)
	UpdateWithdrawalStatus(ctx context.Context, arg UpdateWithdrawalStatusParams) (int64, error)
	ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status domain.WithdrawalStatus, limit, offset int32) ([]models.WithdrawalRequest, error)
	ClaimWithdrawalsForPayout(ctx context.Context, arg ClaimWithdrawalsParams) ([]models.WithdrawalRequest, error)
	RecordPayoutResult(ctx context.Context, id uuid.UUID, payoutRef, payoutErr *string) (int64, error)
	WithdrawalStatsByUser(ctx context.Context, userID uuid.UUID) ([]WithdrawalStat, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error
}

type UpdateDocumentReviewParams struct {
	ID              uuid.UUID
	Status          domain.DocumentStatus
	RejectionReason *string
	ReviewedBy      uuid.UUID
}

// TransactionFilter selects a page of a wallet statement. Zero values mean
// "no constraint"; Limit <= 0 returns every row.
type TransactionFilter struct {
	WalletID uuid.UUID
	Type     string
	From     *time.Time
	To       *time.Time
	Asc      bool
	Limit    int32
	Offset   int32
}

type UpdateWithdrawalStatusParams struct {
	ID         uuid.UUID
	From       domain.WithdrawalStatus
	To         domain.WithdrawalStatus
	AdminNote  *string
	ReviewedBy *uuid.UUID
}

type ClaimWithdrawalsParams struct {
	Limit       int32
	MaxAttempts int32
	StaleBefore time.Time
}

// WithdrawalStat aggregates a user's requests by status.
type WithdrawalStat struct {
	Status      domain.WithdrawalStatus `json:"status"`
	Count       int64                   `json:"count"`
	TotalMicros int64                   `json:"total_micros"`
}

type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}
