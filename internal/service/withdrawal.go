package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/domain"
	"github.com/ayo6706/delivery-marketplace/internal/gateway"
	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/notify"
	"github.com/ayo6706/delivery-marketplace/internal/observability"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statsCachePrefix = "withdrawal_stats"

// WithdrawalConfig tunes the withdrawal workflow.
type WithdrawalConfig struct {
	MinAmountMicros   int64
	StatsCacheTTL     time.Duration
	PayoutMaxAttempts int32
	// PayoutClaimTimeout is how long a claimed payout may stay unanswered
	// before another worker picks it up again.
	PayoutClaimTimeout time.Duration
}

// WithdrawalService moves money out of wallets through admin review and the
// external payout rail. Open requests reserve funds in pending withdrawals.
type WithdrawalService struct {
	store    QueryStore
	ledger   *LedgerService
	rail     gateway.PayoutRail
	cache    redis.Cmdable
	audit    *AuditService
	notifier *notify.Dispatcher
	cfg      WithdrawalConfig
}

func NewWithdrawalService(store QueryStore, ledger *LedgerService, rail gateway.PayoutRail, cache redis.Cmdable, cfg WithdrawalConfig, notifier *notify.Dispatcher) *WithdrawalService {
	if cfg.PayoutMaxAttempts <= 0 {
		cfg.PayoutMaxAttempts = 5
	}
	if cfg.PayoutClaimTimeout <= 0 {
		cfg.PayoutClaimTimeout = 2 * time.Minute
	}
	return &WithdrawalService{
		store:    store,
		ledger:   ledger,
		rail:     rail,
		cache:    cache,
		audit:    NewAuditService(),
		notifier: notifier,
		cfg:      cfg,
	}
}

type RequestWithdrawalInput struct {
	AmountMicros int64
	Method       string
	Destination  json.RawMessage
}

// RequestWithdrawal reserves amount of the caller's available balance and
// queues a PENDING request for admin review.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, in RequestWithdrawalInput) (models.WithdrawalRequest, error) {
	if in.AmountMicros <= 0 {
		return models.WithdrawalRequest{}, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if in.AmountMicros < s.cfg.MinAmountMicros {
		return models.WithdrawalRequest{}, fmt.Errorf("%w: minimum withdrawal is %s", domain.ErrValidation, domain.NewMoney(s.cfg.MinAmountMicros, "").ToDecimal().StringFixed(2))
	}
	method := strings.ToUpper(in.Method)
	if !domain.ValidMethod(method) {
		return models.WithdrawalRequest{}, fmt.Errorf("%w: unsupported method %q", domain.ErrValidation, in.Method)
	}
	if dest := bytes.TrimSpace(in.Destination); len(dest) == 0 || dest[0] != '{' || !json.Valid(dest) {
		return models.WithdrawalRequest{}, fmt.Errorf("%w: destination must be a JSON object", domain.ErrValidation)
	}

	var req models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		wallet, err := qtx.GetWalletByUserForUpdate(ctx, userID)
		if err != nil {
			return notFound(err, "wallet")
		}
		open, err := qtx.CountOpenWithdrawals(ctx, wallet.ID)
		if err != nil {
			return fmt.Errorf("count open withdrawals: %w", err)
		}
		if open > 0 {
			return fmt.Errorf("%w: a withdrawal is already in progress", domain.ErrConflict)
		}
		if _, err := s.ledger.Reserve(ctx, qtx, wallet.ID, in.AmountMicros); err != nil {
			return err
		}

		req = models.WithdrawalRequest{
			ID:              uuid.New(),
			WalletID:        wallet.ID,
			UserID:          userID,
			AmountMicros:    in.AmountMicros,
			Currency:        wallet.Currency,
			Status:          domain.WithdrawalPending,
			PreferredMethod: method,
			Destination:     in.Destination,
			ReviewRequired:  in.AmountMicros > domain.WithdrawalReviewThreshold,
		}
		if in.AmountMicros > domain.WithdrawalPriorityThreshold {
			req.Priority = 1
		}
		if err := qtx.CreateWithdrawal(ctx, &req); err != nil {
			if repository.IsUniqueViolation(err) {
				return fmt.Errorf("%w: a withdrawal is already in progress", domain.ErrConflict)
			}
			return fmt.Errorf("create withdrawal request: %w", err)
		}
		return s.audit.Write(ctx, qtx, entityWithdrawal, req.ID, &userID, "requested", "", string(domain.WithdrawalPending), nil)
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	observability.IncrementWithdrawalTransition(string(domain.WithdrawalPending))
	s.invalidateStats(ctx, userID)
	return req, nil
}

// Review approves (PENDING → PROCESSING) or rejects (PENDING → CANCELLED) a
// request. Rejection needs a note and releases the reservation.
func (s *WithdrawalService) Review(ctx context.Context, adminID, requestID uuid.UUID, decision, note string) (models.WithdrawalRequest, error) {
	var to domain.WithdrawalStatus
	switch strings.ToUpper(decision) {
	case domain.DecisionApprove:
		to = domain.WithdrawalProcessing
	case domain.DecisionReject:
		to = domain.WithdrawalCancelled
		if strings.TrimSpace(note) == "" {
			return models.WithdrawalRequest{}, fmt.Errorf("%w: a note is required to reject", domain.ErrValidation)
		}
	default:
		return models.WithdrawalRequest{}, fmt.Errorf("%w: decision must be APPROVE or REJECT", domain.ErrValidation)
	}

	req, err := s.transition(ctx, requestID, []domain.WithdrawalStatus{domain.WithdrawalPending}, to, note, &adminID, nil, func(qtx repository.Querier, req models.WithdrawalRequest) error {
		if to == domain.WithdrawalCancelled {
			return s.ledger.ReleaseReservation(ctx, qtx, req.WalletID, req.AmountMicros)
		}
		return nil
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	s.notifier.Dispatch(notify.Event{
		Type:        notify.EventWithdrawalReviewed,
		RecipientID: req.UserID,
		EntityID:    req.ID,
		Data:        map[string]any{"status": req.Status},
	})
	return req, nil
}

// Finalize records the payout outcome of a request. COMPLETED requires
// PROCESSING and debits the wallet; FAILED is also accepted for a PENDING
// request and only releases the reservation.
func (s *WithdrawalService) Finalize(ctx context.Context, adminID, requestID uuid.UUID, outcome, note string) (models.WithdrawalRequest, error) {
	to := domain.WithdrawalStatus(strings.ToUpper(outcome))
	if to != domain.WithdrawalCompleted && to != domain.WithdrawalFailed {
		return models.WithdrawalRequest{}, fmt.Errorf("%w: outcome must be COMPLETED or FAILED", domain.ErrValidation)
	}

	from := []domain.WithdrawalStatus{domain.WithdrawalProcessing}
	if to == domain.WithdrawalFailed {
		from = append(from, domain.WithdrawalPending)
	}
	req, err := s.transition(ctx, requestID, from, to, note, &adminID, nil, func(qtx repository.Querier, req models.WithdrawalRequest) error {
		if s.payoutInFlight(req) {
			return fmt.Errorf("%w: payout is being initiated, retry once the rail has answered", domain.ErrConflict)
		}
		if to == domain.WithdrawalCompleted {
			_, err := s.ledger.SettleReservation(ctx, qtx, req.WalletID, req.AmountMicros, withdrawalReference(req.ID))
			return err
		}
		return s.ledger.ReleaseReservation(ctx, qtx, req.WalletID, req.AmountMicros)
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	s.notifier.Dispatch(notify.Event{
		Type:        notify.EventWithdrawalFinalized,
		RecipientID: req.UserID,
		EntityID:    req.ID,
		Data:        map[string]any{"status": req.Status, "amount_micros": req.AmountMicros},
	})
	return req, nil
}

// payoutInFlight reports whether a worker holds a live claim on the request
// and may be talking to the rail right now.
func (s *WithdrawalService) payoutInFlight(req models.WithdrawalRequest) bool {
	return req.PayoutClaimedAt != nil && time.Since(*req.PayoutClaimedAt) < s.cfg.PayoutClaimTimeout
}

// Cancel lets the owner withdraw a request that has not been reviewed yet.
func (s *WithdrawalService) Cancel(ctx context.Context, userID, requestID uuid.UUID) (models.WithdrawalRequest, error) {
	return s.transition(ctx, requestID, []domain.WithdrawalStatus{domain.WithdrawalPending}, domain.WithdrawalCancelled, "", nil, &userID, func(qtx repository.Querier, req models.WithdrawalRequest) error {
		return s.ledger.ReleaseReservation(ctx, qtx, req.WalletID, req.AmountMicros)
	})
}

// transition locks the request, checks its status is one of from, applies
// the wallet effect and writes the new status. owner restricts the request
// to one user; reviewer is recorded on the row.
func (s *WithdrawalService) transition(ctx context.Context, requestID uuid.UUID, from []domain.WithdrawalStatus, to domain.WithdrawalStatus, note string, reviewer, owner *uuid.UUID, effect func(qtx repository.Querier, req models.WithdrawalRequest) error) (models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		req, err = qtx.GetWithdrawalForUpdate(ctx, requestID)
		if err != nil {
			return notFound(err, "withdrawal request")
		}
		if owner != nil && req.UserID != *owner {
			return fmt.Errorf("%w: withdrawal request belongs to another user", domain.ErrForbidden)
		}
		if !slices.Contains(from, req.Status) || !req.Status.CanTransition(to) {
			return fmt.Errorf("%w: withdrawal request is %s", domain.ErrConflict, req.Status)
		}
		if err := effect(qtx, req); err != nil {
			return err
		}

		prev := req.Status
		params := repository.UpdateWithdrawalStatusParams{ID: req.ID, From: prev, To: to, ReviewedBy: reviewer}
		if note != "" {
			params.AdminNote = &note
		}
		rows, err := qtx.UpdateWithdrawalStatus(ctx, params)
		if err != nil {
			return fmt.Errorf("update withdrawal status: %w", err)
		}
		if err := requireExactlyOne(rows, "update withdrawal status"); err != nil {
			return err
		}

		actorID := reviewer
		if actorID == nil {
			actorID = owner
		}
		var metadata []byte
		if note != "" {
			metadata, _ = json.Marshal(map[string]string{"note": note})
		}
		if err := s.audit.Write(ctx, qtx, entityWithdrawal, req.ID, actorID, "status_change", string(prev), string(to), metadata); err != nil {
			return err
		}

		req.Status = to
		if params.AdminNote != nil {
			req.AdminNote = params.AdminNote
		}
		if reviewer != nil {
			req.ReviewedBy = reviewer
		}
		return nil
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}
	observability.IncrementWithdrawalTransition(string(to))
	s.invalidateStats(ctx, req.UserID)
	return req, nil
}

func (s *WithdrawalService) ListMine(ctx context.Context, userID uuid.UUID, page Page) ([]models.WithdrawalRequest, error) {
	limit, offset := page.normalize()
	items, err := s.store.Queries().ListWithdrawalsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	if items == nil {
		items = []models.WithdrawalRequest{}
	}
	return items, nil
}

// ListPending is the admin review queue: priority first, then oldest first.
func (s *WithdrawalService) ListPending(ctx context.Context, page Page) ([]models.WithdrawalRequest, error) {
	limit, offset := page.normalize()
	items, err := s.store.Queries().ListWithdrawalsByStatus(ctx, domain.WithdrawalPending, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pending withdrawals: %w", err)
	}
	if items == nil {
		items = []models.WithdrawalRequest{}
	}
	if offset == 0 {
		observability.SetWithdrawalQueueSize(len(items))
	}
	return items, nil
}

// Stats aggregates the user's requests by status. The result may be served
// from a short-lived cache and is never used to decide anything.
func (s *WithdrawalService) Stats(ctx context.Context, userID uuid.UUID) ([]repository.WithdrawalStat, error) {
	key := statsKey(userID)
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var cached []repository.WithdrawalStat
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			zap.L().Warn("withdrawal stats cache read failed", zap.Error(err))
		}
	}

	stats, err := s.store.Queries().WithdrawalStatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("withdrawal stats: %w", err)
	}
	if stats == nil {
		stats = []repository.WithdrawalStat{}
	}

	if s.cache != nil && s.cfg.StatsCacheTTL > 0 {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cfg.StatsCacheTTL).Err(); err != nil {
				zap.L().Warn("withdrawal stats cache write failed", zap.Error(err))
			}
		}
	}
	return stats, nil
}

func (s *WithdrawalService) invalidateStats(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsKey(userID)).Err(); err != nil {
		zap.L().Warn("withdrawal stats cache invalidation failed", zap.Error(err))
	}
}

func statsKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", statsCachePrefix, userID)
}

// ProcessPayouts claims approved requests without a payout reference and
// starts the external transfer for each. Results are recorded on the request;
// the final COMPLETED/FAILED decision stays with an admin.
func (s *WithdrawalService) ProcessPayouts(ctx context.Context, batchSize int32) error {
	if s.rail == nil {
		return nil
	}

	var claimed []models.WithdrawalRequest
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		claimed, err = qtx.ClaimWithdrawalsForPayout(ctx, repository.ClaimWithdrawalsParams{
			Limit:       batchSize,
			MaxAttempts: s.cfg.PayoutMaxAttempts,
			StaleBefore: time.Now().Add(-s.cfg.PayoutClaimTimeout),
		})
		if err != nil {
			return fmt.Errorf("claim withdrawals for payout: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, req := range claimed {
		if err := ctx.Err(); err != nil {
			// Unprocessed claims go stale and are picked up by a later run.
			return err
		}

		// The call has to finish while the claim still blocks Finalize. A
		// retry after a lost answer reuses the key, so the rail pays once.
		railCtx, cancel := context.WithTimeout(ctx, s.cfg.PayoutClaimTimeout/2)
		ref, railErr := s.rail.InitiatePayout(railCtx, withdrawalReference(req.ID), req.AmountMicros, req.Currency, req.Destination)
		cancel()
		if err := ctx.Err(); err != nil {
			return err
		}

		var refParam, errParam *string
		if railErr != nil {
			msg := railErr.Error()
			errParam = &msg
			observability.IncrementPayoutCall("failed")
			zap.L().Warn("payout rail call failed",
				zap.Error(railErr),
				zap.String("withdrawal_id", req.ID.String()),
				zap.Int32("attempt", req.PayoutAttempts),
			)
		} else {
			refParam = &ref
			observability.IncrementPayoutCall("initiated")
		}

		if err := s.recordPayout(ctx, req, refParam, errParam); err != nil {
			zap.L().Error("failed to record payout result",
				zap.Error(err),
				zap.String("withdrawal_id", req.ID.String()),
				zap.String("payout_ref", ref),
			)
		}
	}
	return nil
}

func (s *WithdrawalService) recordPayout(ctx context.Context, req models.WithdrawalRequest, ref, railErr *string) error {
	return s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		rows, err := qtx.RecordPayoutResult(ctx, req.ID, ref, railErr)
		if err != nil {
			return fmt.Errorf("record payout result: %w", err)
		}
		if err := requireExactlyOne(rows, "record payout result"); err != nil {
			return err
		}
		action := "payout_initiated"
		detail := map[string]any{"attempt": req.PayoutAttempts}
		if ref != nil {
			detail["payout_ref"] = *ref
		} else {
			action = "payout_attempt_failed"
			detail["error"] = *railErr
		}
		metadata, _ := json.Marshal(detail)
		return s.audit.Write(ctx, qtx, entityWithdrawal, req.ID, nil, action, string(req.Status), string(req.Status), metadata)
	})
}

func withdrawalReference(id uuid.UUID) string {
	return "withdrawal:" + id.String()
}
