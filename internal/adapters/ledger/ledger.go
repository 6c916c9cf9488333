// Package ledger holds per-account point balances and an append-only history
// of signed deltas. Accounts mutate only through entry application, so
// replaying an account's entries from zero always reproduces every stored
// balance_after.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/domain/model"
	"github.com/teamforge/merit/pkg/metrics"
)

// account pairs the balance aggregate with its entry history under one lock.
type account struct {
	mu      sync.Mutex
	summary model.PointsAccount
	entries []model.PointsLedgerEntry
}

// lastBalance returns the balance_after of the newest entry, or zero for a
// fresh account. Balances chain entry-to-entry, never from a cached counter.
func (a *account) lastBalance() decimal.Decimal {
	if len(a.entries) == 0 {
		return decimal.Zero
	}
	return a.entries[len(a.entries)-1].BalanceAfter
}

// Store is the in-memory ledger. All mutations to a single account are
// serialized by that account's lock; transfers take both locks in ascending
// account-id order.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

// NewStore creates an empty ledger store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*account),
	}
}

// getOrCreate returns the account, creating it on first touch.
func (s *Store) getOrCreate(accountID string) *account {
	s.mu.RLock()
	a, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if ok {
		return a
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok = s.accounts[accountID]; ok {
		return a
	}
	a = &account{summary: model.PointsAccount{UserID: accountID}}
	s.accounts[accountID] = a
	metrics.UpdateTotalAccounts(len(s.accounts))
	return a
}

// validate checks the change type and that the points sign matches it.
func validate(ct model.ChangeType, points decimal.Decimal) error {
	if !ct.Valid() {
		return fmt.Errorf("%w: unknown change type %q", ErrInvalidDelta, ct)
	}
	if points.IsZero() {
		return fmt.Errorf("%w: zero points", ErrInvalidDelta)
	}
	if ct.Credits() != (points.Sign() > 0) {
		return fmt.Errorf("%w: %s entry with %s points", ErrInvalidDelta, ct, points)
	}
	return nil
}

// Apply validates and applies one ledger entry to an account. The sign of
// points must match the change type. A debit that would drive the available
// balance negative fails with ErrInsufficientPoints and records nothing.
func (s *Store) Apply(ctx context.Context, accountID string, ct model.ChangeType, points decimal.Decimal, reason, relatedProjectID string) (model.PointsLedgerEntry, error) {
	if err := validate(ct, points); err != nil {
		metrics.RecordLedgerError()
		return model.PointsLedgerEntry{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.PointsLedgerEntry{}, fmt.Errorf("ledger apply aborted: %w", err)
	}

	a := s.getOrCreate(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()

	after := a.lastBalance().Add(points)
	if after.Sign() < 0 {
		metrics.RecordLedgerError()
		return model.PointsLedgerEntry{}, fmt.Errorf("%w: balance %s cannot cover %s",
			ErrInsufficientPoints, a.lastBalance(), points)
	}

	entry := s.commit(a, accountID, ct, points, after, reason, relatedProjectID)
	return entry, nil
}

// commit appends an entry and folds it into the summary. Caller holds the
// account lock and has verified the resulting balance is non-negative.
func (s *Store) commit(a *account, accountID string, ct model.ChangeType, points, after decimal.Decimal, reason, relatedProjectID string) model.PointsLedgerEntry {
	entry := model.PointsLedgerEntry{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		ChangeType:       ct,
		Points:           points,
		Reason:           reason,
		RelatedProjectID: relatedProjectID,
		BalanceAfter:     after,
		CreatedAt:        time.Now().UTC(),
	}
	a.entries = append(a.entries, entry)

	a.summary.AvailablePoints = after
	if points.Sign() > 0 {
		a.summary.TotalPoints = a.summary.TotalPoints.Add(points)
	} else {
		a.summary.UsedPoints = a.summary.UsedPoints.Sub(points)
	}

	metrics.RecordLedgerEntry(string(ct))
	return entry
}

// Credit is one pending credit of a batch.
type Credit struct {
	AccountID string
	Points    decimal.Decimal
}

// ApplyBatch applies one credit entry per element as a single atomic
// operation. Every element is validated and the context checked before
// anything is committed; credits cannot fail afterwards, so either all
// entries land or none do.
func (s *Store) ApplyBatch(ctx context.Context, ct model.ChangeType, credits []Credit, reason, relatedProjectID string) ([]model.PointsLedgerEntry, error) {
	if !ct.Credits() {
		metrics.RecordLedgerError()
		return nil, fmt.Errorf("%w: batch apply requires a crediting change type, got %s", ErrInvalidDelta, ct)
	}
	for _, c := range credits {
		if err := validate(ct, c.Points); err != nil {
			metrics.RecordLedgerError()
			return nil, fmt.Errorf("account %s: %w", c.AccountID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ledger batch apply aborted: %w", err)
	}

	entries := make([]model.PointsLedgerEntry, 0, len(credits))
	for _, c := range credits {
		a := s.getOrCreate(c.AccountID)
		a.mu.Lock()
		after := a.lastBalance().Add(c.Points)
		entries = append(entries, s.commit(a, c.AccountID, ct, c.Points, after, reason, relatedProjectID))
		a.mu.Unlock()
	}
	return entries, nil
}

// Debit applies a negative entry of the given type for a positive amount.
// Satisfies the equity calculator's funding interface.
func (s *Store) Debit(ctx context.Context, accountID string, amount decimal.Decimal, ct model.ChangeType, reason string) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: debit amount %s", ErrInvalidDelta, amount)
	}
	_, err := s.Apply(ctx, accountID, ct, amount.Neg(), reason, "")
	return err
}

// Transfer moves points between two accounts as one logical operation:
// exactly one transfer_out on the sender and one transfer_in on the
// receiver, or neither. Both account locks are taken in ascending
// account-id order to prevent deadlock.
func (s *Store) Transfer(ctx context.Context, fromID, toID string, points decimal.Decimal, reason string) (model.PointsLedgerEntry, model.PointsLedgerEntry, error) {
	var none model.PointsLedgerEntry
	if fromID == toID {
		metrics.RecordTransferFailure()
		return none, none, fmt.Errorf("%w: self transfer on %s", ErrInvalidTransferTarget, fromID)
	}
	if points.Sign() <= 0 {
		metrics.RecordTransferFailure()
		return none, none, fmt.Errorf("%w: transfer of %s points", ErrInvalidDelta, points)
	}
	if err := ctx.Err(); err != nil {
		return none, none, fmt.Errorf("transfer aborted: %w", err)
	}

	from := s.getOrCreate(fromID)
	to := s.getOrCreate(toID)

	// Fixed global lock order: ascending account id.
	first, second := from, to
	if toID < fromID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	// Validate both sides before committing either entry.
	senderAfter := from.lastBalance().Sub(points)
	if senderAfter.Sign() < 0 {
		metrics.RecordTransferFailure()
		return none, none, fmt.Errorf("%w: balance %s cannot cover transfer of %s",
			ErrInsufficientPoints, from.lastBalance(), points)
	}
	receiverAfter := to.lastBalance().Add(points)

	out := s.commit(from, fromID, model.ChangeTransferOut, points.Neg(), senderAfter, reason, "")
	in := s.commit(to, toID, model.ChangeTransferIn, points, receiverAfter, reason, "")

	metrics.RecordTransfer()
	return out, in, nil
}

// Summary returns the balance aggregate for an account.
func (s *Store) Summary(_ context.Context, accountID string) (model.PointsAccount, error) {
	s.mu.RLock()
	a, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return model.PointsAccount{}, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summary, nil
}

// History returns a copy of an account's entries in application order.
func (s *Store) History(_ context.Context, accountID string) ([]model.PointsLedgerEntry, error) {
	s.mu.RLock()
	a, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accountID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.PointsLedgerEntry, len(a.entries))
	copy(out, a.entries)
	return out, nil
}

// Count returns the number of accounts tracked.
func (s *Store) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
