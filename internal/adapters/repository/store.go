// Package repository defines the calculation/record store interface and the
// draft -> finalized lifecycle guard.
package repository

import (
	"context"

	"github.com/teamforge/merit/internal/domain/model"
)

// Store provides access to contribution records and merit calculations for
// work items. All mutations to a single work item are serialized by the
// implementation.
type Store interface {
	// AddRecord appends an immutable contribution record.
	// Returns ErrDuplicateRecord when the record id was already stored.
	AddRecord(ctx context.Context, rec model.ContributionRecord) error

	// Records returns a copy of all records for a work item in insertion
	// order.
	Records(ctx context.Context, workItemID string) ([]model.ContributionRecord, error)

	// Get returns the calculation for a work item.
	// Returns ErrNotFound when no calculation exists.
	Get(ctx context.Context, workItemID string) (model.MeritCalculation, error)

	// PutDraft stores a freshly computed draft calculation, replacing any
	// existing draft. Returns ErrAlreadyFinalized if the stored calculation
	// was finalized.
	PutDraft(ctx context.Context, calc *model.MeritCalculation) error

	// Update applies fn to a copy of the draft under the work item lock and
	// commits the result with a bumped revision. fn returning an error
	// aborts the update with no state change. Returns ErrAlreadyFinalized
	// for finalized calculations.
	Update(ctx context.Context, workItemID string, fn func(*model.MeritCalculation) error) (model.MeritCalculation, error)

	// Finalize flips draft -> finalized, running credit against the final
	// vector first; if credit fails the calculation stays draft. A second
	// call fails with ErrAlreadyFinalized.
	Finalize(ctx context.Context, workItemID string, credit func(model.MeritCalculation) error) (model.MeritCalculation, error)

	// Count returns the number of calculations tracked.
	Count(ctx context.Context) int
}
