// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionType classifies how a contribution was made to a work item.
type ContributionType string

// Contribution types recorded by evaluators.
const (
	ContributionTask     ContributionType = "task"
	ContributionPeerEval ContributionType = "peer_eval"
	ContributionReview   ContributionType = "review"
	ContributionSupport  ContributionType = "support"
)

// Valid reports whether t is a known contribution type.
func (t ContributionType) Valid() bool {
	switch t {
	case ContributionTask, ContributionPeerEval, ContributionReview, ContributionSupport:
		return true
	}
	return false
}

// ContributionRecord is an immutable record of one evaluated contribution.
// Corrections are additional records, never edits.
type ContributionRecord struct {
	ID            string           `json:"id"`
	WorkItemID    string           `json:"work_item_id"`
	ContributorID string           `json:"contributor_id"`
	Type          ContributionType `json:"type"`
	RawScore      decimal.Decimal  `json:"raw_score"` // 0..100
	Weight        decimal.Decimal  `json:"weight"`    // 0..1
	RecorderID    string           `json:"recorder_id"`
	Evidence      string           `json:"evidence,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// RecalcEvent asks the workers to recompute the draft merit calculation
// for a work item after its contribution records changed.
type RecalcEvent struct {
	WorkItemID string    `json:"work_item_id"`
	RecordID   string    `json:"record_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ParticipantContribution is the derived weighted total for one participant
// of a work item. It is computed, never stored.
type ParticipantContribution struct {
	WorkItemID         string          `json:"work_item_id"`
	ParticipantID      string          `json:"participant_id"`
	TotalWeightedScore decimal.Decimal `json:"total_weighted_score"`
}

// Method identifies the allocation formula used for a merit calculation.
// It is selected solely by participant count.
type Method string

// Allocation methods by group cardinality.
const (
	MethodSingle     Method = "single"      // n == 1
	MethodDuo        Method = "duo"         // n == 2
	MethodSmallGroup Method = "small_group" // 3 <= n <= 10
	MethodLargeGroup Method = "large_group" // n > 10
)

// MeritParticipant is one row of a merit calculation's participant vector.
type MeritParticipant struct {
	ParticipantID     string          `json:"participant_id"`
	ContributionValue decimal.Decimal `json:"contribution_value"`
	RoleWeight        float64         `json:"role_weight"`
	MeritPoints       decimal.Decimal `json:"merit_points"`
	MeritPercentage   float64         `json:"merit_percentage"`
}

// MeritCalculation distributes a fixed value pool over a work item's
// participants. Drafts may be edited; finalized calculations are read-only
// forever.
type MeritCalculation struct {
	ID             string             `json:"id"`
	WorkItemID     string             `json:"work_item_id"`
	Method         Method             `json:"method"`
	TotalValuePool decimal.Decimal    `json:"total_value_pool"`
	Participants   []MeritParticipant `json:"participants"`
	IsFinalized    bool               `json:"is_finalized"`
	Revision       int                `json:"revision"`
	CalculatedAt   time.Time          `json:"calculated_at"`
	FinalizedAt    *time.Time         `json:"finalized_at,omitempty"`
}

// Participant returns the participant row with the given id, or nil.
func (c *MeritCalculation) Participant(id string) *MeritParticipant {
	for i := range c.Participants {
		if c.Participants[i].ParticipantID == id {
			return &c.Participants[i]
		}
	}
	return nil
}

// EntityType distinguishes valuation subjects.
type EntityType string

// Valuation entity types.
const (
	EntityUser    EntityType = "user"
	EntityProject EntityType = "project"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityUser || t == EntityProject
}

// EntityValuation is the 100%-ownership baseline valuation of an entity
// before a new capital injection.
type EntityValuation struct {
	EntityType       EntityType      `json:"entity_type"`
	EntityID         string          `json:"entity_id"`
	CurrentValuation decimal.Decimal `json:"current_valuation"`
}

// SelfInvestment is an immutable record of a self-funded capital injection.
// A correction requires a new offsetting investment, never an edit.
type SelfInvestment struct {
	ID              string          `json:"id"`
	EntityType      EntityType      `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Amount          decimal.Decimal `json:"amount"`
	VotingRoundID   string          `json:"voting_round_id"`
	ValuationBefore decimal.Decimal `json:"valuation_before"`
	ValuationAfter  decimal.Decimal `json:"valuation_after"`
	EquityBefore    decimal.Decimal `json:"equity_before"` // always 100
	EquityAfter     decimal.Decimal `json:"equity_after"`
	InvestorShare   decimal.Decimal `json:"investor_share"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ChangeType classifies a ledger entry. The sign of the entry's points is
// derived from it.
type ChangeType string

// Ledger change types.
const (
	ChangeEarn        ChangeType = "earn"
	ChangeSpend       ChangeType = "spend"
	ChangeTransferIn  ChangeType = "transfer_in"
	ChangeTransferOut ChangeType = "transfer_out"
	ChangeReward      ChangeType = "reward"
	ChangePenalty     ChangeType = "penalty"
	ChangeRefund      ChangeType = "refund"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeEarn, ChangeSpend, ChangeTransferIn, ChangeTransferOut,
		ChangeReward, ChangePenalty, ChangeRefund:
		return true
	}
	return false
}

// Credits reports whether entries of this type must carry positive points.
// The remaining types (spend, transfer_out, penalty) must carry negative
// points.
func (t ChangeType) Credits() bool {
	switch t {
	case ChangeEarn, ChangeTransferIn, ChangeReward, ChangeRefund:
		return true
	}
	return false
}

// PointsAccount is the mutable balance aggregate for one user. It changes
// only through ledger-entry application. Invariant: TotalPoints ==
// AvailablePoints + UsedPoints, all >= 0.
type PointsAccount struct {
	UserID          string          `json:"user_id"`
	TotalPoints     decimal.Decimal `json:"total_points"`
	AvailablePoints decimal.Decimal `json:"available_points"`
	UsedPoints      decimal.Decimal `json:"used_points"`
}

// PointsLedgerEntry is an immutable, signed balance change. BalanceAfter is
// the account's available points immediately after this entry applied;
// replaying all entries from zero reproduces every BalanceAfter exactly.
type PointsLedgerEntry struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	ChangeType       ChangeType      `json:"change_type"`
	Points           decimal.Decimal `json:"points"`
	Reason           string          `json:"reason"`
	RelatedProjectID string          `json:"related_project_id,omitempty"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
	CreatedAt        time.Time       `json:"created_at"`
}
