// Package equity computes post-investment valuation and ownership dilution
// for self-funded capital injections.
//
// Self-dilution is the documented use case: the investing entity buys a
// higher baseline valuation at the cost of relative ownership, so the
// original 100% holder always ends below 100% after a positive injection.
package equity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/domain/model"
)

// Percentage scale for equity values.
const equityScale = 8

var hundred = decimal.NewFromInt(100)

// FundingSource selects where investment funds are debited from.
type FundingSource string

// Funding sources.
const (
	// FundingPoints debits the investor's points account.
	FundingPoints FundingSource = "points"
	// FundingExternal assumes an external currency ledger outside this
	// service; no debit is performed here.
	FundingExternal FundingSource = "external"
)

// Debitor debits an account's available points. Implemented by the ledger
// store; failures map to ErrInsufficientBalance.
type Debitor interface {
	Debit(ctx context.Context, accountID string, amount decimal.Decimal, ct model.ChangeType, reason string) error
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithMaxAmount sets the configured investment ceiling.
func WithMaxAmount(max decimal.Decimal) Option {
	return func(c *Calculator) {
		if max.Sign() > 0 {
			c.maxAmount = max
		}
	}
}

// WithFunding sets the funding source for investments.
func WithFunding(src FundingSource, debitor Debitor) Option {
	return func(c *Calculator) {
		c.funding = src
		c.debitor = debitor
	}
}

// Calculator applies self investments against per-entity valuations.
// Valuation reads and the funding debit happen under one lock so the
// computation is snapshot-consistent with the balance change.
type Calculator struct {
	mu          sync.Mutex
	valuations  map[string]decimal.Decimal // key: entityType/entityID
	investments []model.SelfInvestment

	maxAmount decimal.Decimal
	funding   FundingSource
	debitor   Debitor
}

// defaultMaxAmount is the configured ceiling when no option overrides it.
var defaultMaxAmount = decimal.RequireFromString("10.00")

// NewCalculator creates an equity calculator with configuration options.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		valuations: make(map[string]decimal.Decimal),
		maxAmount:  defaultMaxAmount,
		funding:    FundingExternal,
	}

	// Apply all options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func key(entityType model.EntityType, entityID string) string {
	return string(entityType) + "/" + entityID
}

// SetValuation seeds the baseline valuation for an entity. Negative
// valuations are rejected.
func (c *Calculator) SetValuation(entityType model.EntityType, entityID string, valuation decimal.Decimal) error {
	if !entityType.Valid() || entityID == "" {
		return fmt.Errorf("%w: %s/%s", ErrInvalidEntity, entityType, entityID)
	}
	if valuation.Sign() < 0 {
		return fmt.Errorf("%w: valuation %s is negative", ErrOutOfRange, valuation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valuations[key(entityType, entityID)] = valuation
	return nil
}

// Valuation returns the current valuation for an entity (zero if unseen).
func (c *Calculator) Valuation(entityType model.EntityType, entityID string) model.EntityValuation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.EntityValuation{
		EntityType:       entityType,
		EntityID:         entityID,
		CurrentValuation: c.valuations[key(entityType, entityID)],
	}
}

// Investments returns a copy of all recorded investments, oldest first.
func (c *Calculator) Investments() []model.SelfInvestment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.SelfInvestment, len(c.investments))
	copy(out, c.investments)
	return out
}

// ApplySelfInvestment atomically debits the funding source (when funded from
// points), raises the entity valuation by amount, and records an immutable
// SelfInvestment. On any failure nothing changes.
//
//	valuation_after = valuation_before + amount
//	equity_after    = valuation_before / valuation_after * 100
//	investor_share  = amount / valuation_after * 100
func (c *Calculator) ApplySelfInvestment(ctx context.Context, entityType model.EntityType, entityID string, amount decimal.Decimal, votingRoundID string) (model.SelfInvestment, error) {
	if !entityType.Valid() || entityID == "" {
		return model.SelfInvestment{}, fmt.Errorf("%w: %s/%s", ErrInvalidEntity, entityType, entityID)
	}
	if amount.Sign() <= 0 || amount.GreaterThan(c.maxAmount) {
		return model.SelfInvestment{}, fmt.Errorf("%w: amount %s not in (0, %s]",
			ErrOutOfRange, amount, c.maxAmount)
	}

	// Abort before mutation when the caller's deadline already expired.
	if err := ctx.Err(); err != nil {
		return model.SelfInvestment{}, fmt.Errorf("investment aborted: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.valuations[key(entityType, entityID)]
	if before.Sign() < 0 {
		return model.SelfInvestment{}, fmt.Errorf("%w: valuation %s is negative", ErrOutOfRange, before)
	}

	// Debit first: if the funding account cannot cover the amount, the
	// valuation must remain untouched.
	if c.funding == FundingPoints {
		if c.debitor == nil {
			return model.SelfInvestment{}, errors.New("points funding configured without a ledger")
		}
		reason := "self investment " + votingRoundID
		if err := c.debitor.Debit(ctx, entityID, amount, model.ChangeSpend, reason); err != nil {
			return model.SelfInvestment{}, fmt.Errorf("%w: %s", ErrInsufficientBalance, err)
		}
	}

	after := before.Add(amount)
	inv := model.SelfInvestment{
		ID:              uuid.NewString(),
		EntityType:      entityType,
		EntityID:        entityID,
		Amount:          amount,
		VotingRoundID:   votingRoundID,
		ValuationBefore: before,
		ValuationAfter:  after,
		EquityBefore:    hundred,
		EquityAfter:     before.Div(after).Mul(hundred).Round(equityScale),
		InvestorShare:   amount.Div(after).Mul(hundred).Round(equityScale),
		CreatedAt:       time.Now().UTC(),
	}

	c.valuations[key(entityType, entityID)] = after
	c.investments = append(c.investments, inv)
	return inv, nil
}
