package models

import (
	"encoding/json"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the verification state of an actor gated by documents
// (deliverer, provider, merchant).
type Profile struct {
	UserID             uuid.UUID               `json:"user_id"`
	Role               string                  `json:"role"`
	ValidationStatus   domain.ValidationStatus `json:"validation_status"`
	CredentialID       *string                 `json:"credential_id,omitempty"`
	CredentialIssuedAt *time.Time              `json:"credential_issued_at,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

type Document struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"user_id"`
	Type            string                `json:"type"`
	Status          domain.DocumentStatus `json:"status"`
	StorageKey      string                `json:"-"`
	FileName        string                `json:"file_name"`
	ContentType     string                `json:"content_type"`
	RejectionReason *string               `json:"rejection_reason,omitempty"`
	ReviewedBy      *uuid.UUID            `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time            `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type Announcement struct {
	ID              uuid.UUID                 `json:"id"`
	ClientID        uuid.UUID                 `json:"client_id"`
	Status          domain.AnnouncementStatus `json:"status"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description,omitempty"`
	PickupAddress   string                    `json:"pickup_address"`
	DeliveryAddress string                    `json:"delivery_address"`
	PriceMicros     int64                     `json:"price_micros"`
	Currency        string                    `json:"currency"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type Delivery struct {
	ID                  uuid.UUID             `json:"id"`
	AnnouncementID      uuid.UUID             `json:"announcement_id"`
	DelivererID         uuid.UUID             `json:"deliverer_id"`
	ClientID            uuid.UUID             `json:"client_id"`
	Status              domain.DeliveryStatus `json:"status"`
	ValidationCode      string                `json:"validation_code,omitempty"`
	ProposedPriceMicros int64                 `json:"proposed_price_micros"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
}

// DeliveryLog is an append-only entry in a delivery's history.
type DeliveryLog struct {
	ID         int64                 `json:"id"`
	DeliveryID uuid.UUID             `json:"delivery_id"`
	Status     domain.DeliveryStatus `json:"status"`
	Note       string                `json:"note,omitempty"`
	ActorID    *uuid.UUID            `json:"actor_id,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

type Payment struct {
	ID           uuid.UUID            `json:"id"`
	DeliveryID   uuid.UUID            `json:"delivery_id"`
	PayerID      uuid.UUID            `json:"payer_id"`
	PayeeID      uuid.UUID            `json:"payee_id"`
	AmountMicros int64                `json:"amount_micros"`
	Currency     string               `json:"currency"`
	Status       domain.PaymentStatus `json:"status"`
	Type         string               `json:"type"`
	Reason       *string              `json:"reason,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Commission is the platform's share of a released payment.
type Commission struct {
	ID           uuid.UUID `json:"id"`
	PaymentID    uuid.UUID `json:"payment_id"`
	DeliveryID   uuid.UUID `json:"delivery_id"`
	Rate         string    `json:"rate"`
	AmountMicros int64     `json:"amount_micros"`
	CreatedAt    time.Time `json:"created_at"`
}

type Wallet struct {
	ID                       uuid.UUID `json:"id"`
	UserID                   uuid.UUID `json:"user_id"`
	BalanceMicros            int64     `json:"balance_micros"`
	PendingWithdrawalsMicros int64     `json:"pending_withdrawals_micros"`
	Currency                 string    `json:"currency"`
	IsActive                 bool      `json:"is_active"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// Available returns the part of the balance not reserved by open withdrawals.
func (w Wallet) Available() int64 {
	return w.BalanceMicros - w.PendingWithdrawalsMicros
}

// Transaction is an append-only ledger entry. It is never updated.
type Transaction struct {
	ID           uuid.UUID `json:"id"`
	WalletID     uuid.UUID `json:"wallet_id"`
	AmountMicros int64     `json:"amount_micros"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Reference    string    `json:"reference"`
	CreatedAt    time.Time `json:"created_at"`
}

type WithdrawalRequest struct {
	ID              uuid.UUID               `json:"id"`
	WalletID        uuid.UUID               `json:"wallet_id"`
	UserID          uuid.UUID               `json:"user_id"`
	AmountMicros    int64                   `json:"amount_micros"`
	Currency        string                  `json:"currency"`
	Status          domain.WithdrawalStatus `json:"status"`
	PreferredMethod string                  `json:"preferred_method"`
	Destination     json.RawMessage         `json:"destination,omitempty"`
	AdminNote       *string                 `json:"admin_note,omitempty"`
	ReviewedBy      *uuid.UUID              `json:"reviewed_by,omitempty"`
	ReviewRequired  bool                    `json:"review_required"`
	Priority        int32                   `json:"priority"`
	PayoutRef       *string                 `json:"payout_ref,omitempty"`
	PayoutAttempts  int32                   `json:"payout_attempts"`
	PayoutError     *string                 `json:"payout_error,omitempty"`
	PayoutClaimedAt *time.Time              `json:"-"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	ProcessedAt     *time.Time              `json:"processed_at,omitempty"`
}
