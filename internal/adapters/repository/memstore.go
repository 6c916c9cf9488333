package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teamforge/merit/internal/domain/model"
	"github.com/teamforge/merit/pkg/metrics"
)

// workItem bundles a work item's records and calculation under one lock so
// draft edits, recomputation, and finalize cannot interleave.
type workItem struct {
	mu      sync.Mutex
	records []model.ContributionRecord
	ids     map[string]struct{}
	calc    *model.MeritCalculation
}

// MemStore implements Store in memory with a per-work-item exclusive lock.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]*workItem
	calcs int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(_ context.Context) *MemStore {
	return &MemStore{
		items: make(map[string]*workItem),
	}
}

func (s *MemStore) getOrCreate(workItemID string) *workItem {
	s.mu.RLock()
	w, ok := s.items[workItemID]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.items[workItemID]; ok {
		return w
	}
	w = &workItem{ids: make(map[string]struct{})}
	s.items[workItemID] = w
	return w
}

// AddRecord appends an immutable contribution record.
func (s *MemStore) AddRecord(ctx context.Context, rec model.ContributionRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("add record aborted: %w", err)
	}
	w := s.getOrCreate(rec.WorkItemID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.ids[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
	}
	w.ids[rec.ID] = struct{}{}
	w.records = append(w.records, rec)
	return nil
}

// Records returns a copy of the work item's records.
func (s *MemStore) Records(_ context.Context, workItemID string) ([]model.ContributionRecord, error) {
	s.mu.RLock()
	w, ok := s.items[workItemID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.ContributionRecord, len(w.records))
	copy(out, w.records)
	return out, nil
}

// Get returns a copy of the work item's calculation.
func (s *MemStore) Get(_ context.Context, workItemID string) (model.MeritCalculation, error) {
	s.mu.RLock()
	w, ok := s.items[workItemID]
	s.mu.RUnlock()
	if !ok || w == nil {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrNotFound, workItemID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calc == nil {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrNotFound, workItemID)
	}
	return clone(w.calc), nil
}

// PutDraft stores a freshly computed draft, preserving the revision chain of
// any draft it replaces.
func (s *MemStore) PutDraft(ctx context.Context, calc *model.MeritCalculation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put draft aborted: %w", err)
	}
	w := s.getOrCreate(calc.WorkItemID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.calc != nil && w.calc.IsFinalized {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, calc.WorkItemID)
	}
	stored := clone(calc)
	if w.calc != nil {
		// Replacing a draft continues its revision chain and identity.
		stored.ID = w.calc.ID
		stored.Revision = w.calc.Revision + 1
	} else {
		s.bumpCalcs(1)
		metrics.RecordCalculationCreated()
	}
	w.calc = &stored
	return nil
}

// Update applies fn to a copy of the draft and commits it with a bumped
// revision.
func (s *MemStore) Update(ctx context.Context, workItemID string, fn func(*model.MeritCalculation) error) (model.MeritCalculation, error) {
	if err := ctx.Err(); err != nil {
		return model.MeritCalculation{}, fmt.Errorf("update aborted: %w", err)
	}
	s.mu.RLock()
	w, ok := s.items[workItemID]
	s.mu.RUnlock()
	if !ok {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrNotFound, workItemID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calc == nil {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrNotFound, workItemID)
	}
	if w.calc.IsFinalized {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrAlreadyFinalized, workItemID)
	}

	working := clone(w.calc)
	if err := fn(&working); err != nil {
		return model.MeritCalculation{}, err
	}
	working.Revision = w.calc.Revision + 1
	w.calc = &working
	return clone(&working), nil
}

// Finalize flips draft -> finalized after credit succeeds. The state flip
// and the credit happen under the work item lock, so a concurrent second
// finalize observes the flipped state, never a half-credited draft.
func (s *MemStore) Finalize(ctx context.Context, workItemID string, credit func(model.MeritCalculation) error) (model.MeritCalculation, error) {
	if err := ctx.Err(); err != nil {
		return model.MeritCalculation{}, fmt.Errorf("finalize aborted: %w", err)
	}
	s.mu.RLock()
	w, ok := s.items[workItemID]
	s.mu.RUnlock()
	if !ok {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrNotFound, workItemID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calc == nil {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrNotFound, workItemID)
	}
	if w.calc.IsFinalized {
		return model.MeritCalculation{}, fmt.Errorf("%w: %s", ErrAlreadyFinalized, workItemID)
	}

	if credit != nil {
		if err := credit(clone(w.calc)); err != nil {
			return model.MeritCalculation{}, err
		}
	}

	now := time.Now().UTC()
	w.calc.IsFinalized = true
	w.calc.FinalizedAt = &now
	w.calc.Revision++
	metrics.RecordCalculationFinalized()
	return clone(w.calc), nil
}

// Count returns the number of calculations tracked.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calcs
}

func (s *MemStore) bumpCalcs(delta int) {
	s.mu.Lock()
	s.calcs += delta
	count := s.calcs
	s.mu.Unlock()
	metrics.UpdateTotalCalculations(count)
}

// clone deep-copies a calculation so callers never share the stored
// participant vector.
func clone(c *model.MeritCalculation) model.MeritCalculation {
	out := *c
	out.Participants = make([]model.MeritParticipant, len(c.Participants))
	copy(out.Participants, c.Participants)
	if c.FinalizedAt != nil {
		t := *c.FinalizedAt
		out.FinalizedAt = &t
	}
	return out
}
