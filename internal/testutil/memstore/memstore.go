// Package memstore is an in-memory repository.Querier for tests. Transactions
// run one at a time against a copy of the state that is swapped in on
// success, so row locks are implied and a failed transaction leaves no trace.
// Constraint checks mirror the SQL schema and surface as *pgconn.PgError.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/delivery-marketplace/internal/models"
	"github.com/ayo6706/delivery-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditEntry is a recorded audit_log row.
type AuditEntry struct {
	repository.InsertAuditLogParams
	CreatedAt time.Time
}

type state struct {
	users         map[uuid.UUID]models.User
	profiles      map[uuid.UUID]models.Profile
	documents     map[uuid.UUID]models.Document
	documentOrder []uuid.UUID
	announcements map[uuid.UUID]models.Announcement
	annOrder      []uuid.UUID
	deliveries    map[uuid.UUID]models.Delivery
	deliveryOrder []uuid.UUID
	logs          []models.DeliveryLog
	payments      map[uuid.UUID]models.Payment
	commissions   map[uuid.UUID]models.Commission
	wallets       map[uuid.UUID]models.Wallet
	walletOrder   []uuid.UUID
	transactions  []models.Transaction
	withdrawals   map[uuid.UUID]models.WithdrawalRequest
	wdOrder       []uuid.UUID
	audit         []AuditEntry
	logSeq        int64
}

func newState() *state {
	return &state{
		users:         map[uuid.UUID]models.User{},
		profiles:      map[uuid.UUID]models.Profile{},
		documents:     map[uuid.UUID]models.Document{},
		announcements: map[uuid.UUID]models.Announcement{},
		deliveries:    map[uuid.UUID]models.Delivery{},
		payments:      map[uuid.UUID]models.Payment{},
		commissions:   map[uuid.UUID]models.Commission{},
		wallets:       map[uuid.UUID]models.Wallet{},
		withdrawals:   map[uuid.UUID]models.WithdrawalRequest{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	return append([]T(nil), s...)
}

func (s *state) clone() *state {
	return &state{
		users:         cloneMap(s.users),
		profiles:      cloneMap(s.profiles),
		documents:     cloneMap(s.documents),
		documentOrder: cloneSlice(s.documentOrder),
		announcements: cloneMap(s.announcements),
		annOrder:      cloneSlice(s.annOrder),
		deliveries:    cloneMap(s.deliveries),
		deliveryOrder: cloneSlice(s.deliveryOrder),
		logs:          cloneSlice(s.logs),
		payments:      cloneMap(s.payments),
		commissions:   cloneMap(s.commissions),
		wallets:       cloneMap(s.wallets),
		walletOrder:   cloneSlice(s.walletOrder),
		transactions:  cloneSlice(s.transactions),
		withdrawals:   cloneMap(s.withdrawals),
		wdOrder:       cloneSlice(s.wdOrder),
		audit:         cloneSlice(s.audit),
		logSeq:        s.logSeq,
	}
}

// Store mirrors repository.Store.
type Store struct {
	mu    sync.Mutex
	state *state

	failNextCommit error
}

func New() *Store {
	return &Store{state: newState()}
}

// Queries returns an autocommit query set: every call is its own transaction.
func (s *Store) Queries() repository.Querier {
	return &Queries{store: s}
}

// RunInTx serializes fn against a private copy of the state and publishes
// the copy only when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&Queries{store: s, st: work}); err != nil {
		return err
	}
	if s.failNextCommit != nil {
		err := s.failNextCommit
		s.failNextCommit = nil
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.state = work
	return nil
}

// FailNextCommit arranges for the next RunInTx to discard its work and return err.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommit = err
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// AuditEntries returns a snapshot of the audit log.
func (s *Store) AuditEntries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSlice(s.state.audit)
}

// Commissions returns a snapshot of recorded commissions.
func (s *Store) Commissions() []models.Commission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Commission, 0, len(s.state.commissions))
	for _, c := range s.state.commissions {
		out = append(out, c)
	}
	return out
}

// CorruptBalance overwrites a wallet balance without a ledger entry.
func (s *Store) CorruptBalance(walletID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.state.wallets[walletID]
	w.BalanceMicros = balance
	s.state.wallets[walletID] = w
}

// Queries implements repository.Querier over the in-memory state.
type Queries struct {
	store *Store
	st    *state
}

var _ repository.Querier = (*Queries)(nil)

// begin returns the state to operate on and a release func. Inside a
// transaction the store lock is already held.
func (q *Queries) begin() (*state, func()) {
	if q.st != nil {
		return q.st, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

func now() time.Time { return time.Now().UTC() }

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: repository.CodeUniqueViolation, ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: repository.CodeForeignKeyViolation, ConstraintName: constraint, Message: "violates foreign key constraint"}
}

func errNoRows() error { return pgx.ErrNoRows }

func page[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}

func sortStable[T any](s []T, less func(a, b T) bool) {
	sort.SliceStable(s, func(i, j int) bool { return less(s[i], s[j]) })
}
