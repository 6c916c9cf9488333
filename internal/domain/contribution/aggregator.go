// Package contribution validates raw contribution records and aggregates
// them into per-participant weighted totals.
package contribution

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/domain/model"
)

// Bounds enforced at ingestion. Out-of-range values are rejected, never
// clamped.
var (
	minScore  = decimal.Zero
	maxScore  = decimal.NewFromInt(100)
	minWeight = decimal.Zero
	maxWeight = decimal.NewFromInt(1)
)

// Validate checks a record's score and weight against the ingestion bounds.
// Returns ErrInvalidValue for anything outside raw_score in [0,100] or
// weight in [0,1].
func Validate(rec model.ContributionRecord) error {
	if !rec.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidValue, rec.Type)
	}
	if rec.RawScore.LessThan(minScore) || rec.RawScore.GreaterThan(maxScore) {
		return fmt.Errorf("%w: raw_score %s outside [0,100]", ErrInvalidValue, rec.RawScore)
	}
	if rec.Weight.LessThan(minWeight) || rec.Weight.GreaterThan(maxWeight) {
		return fmt.Errorf("%w: weight %s outside [0,1]", ErrInvalidValue, rec.Weight)
	}
	return nil
}

// Aggregate totals the weighted scores of all records per participant.
// Totals keep full decimal precision; rounding happens only at presentation
// boundaries. Pure read-aggregate, no side effects.
func Aggregate(workItemID string, records []model.ContributionRecord) (map[string]decimal.Decimal, error) {
	totals := make(map[string]decimal.Decimal)
	for _, rec := range records {
		if rec.WorkItemID != workItemID {
			continue
		}
		if err := Validate(rec); err != nil {
			return nil, err
		}
		totals[rec.ContributorID] = totals[rec.ContributorID].Add(rec.RawScore.Mul(rec.Weight))
	}
	return totals, nil
}

// Totals converts an aggregation map into a deterministic, id-ordered slice
// of derived ParticipantContribution rows.
func Totals(workItemID string, totals map[string]decimal.Decimal) []model.ParticipantContribution {
	out := make([]model.ParticipantContribution, 0, len(totals))
	for id, total := range totals {
		out = append(out, model.ParticipantContribution{
			WorkItemID:         workItemID,
			ParticipantID:      id,
			TotalWeightedScore: total,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}
