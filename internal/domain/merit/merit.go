// Package merit distributes a fixed value pool over a work item's
// participants. The allocation formula is selected solely by participant
// count; each formula is a named pure function over the weighted
// contribution totals.
package merit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/domain/model"
)

// Default engine configuration constants.
const (
	// smallGroupMax is the largest participant count still allocated with
	// the small-group formula.
	smallGroupMax = 10

	// defaultSmallGroupK is the outlier-dampening coefficient in
	// A_i = 1 + k*(s_i - 1/n). Chosen so a participant holding the whole
	// pool's share in a trio is boosted by at most ~13%; the exact source
	// behavior was underspecified, so the value is fixed here and covered
	// by the monotonicity and equal-split tests.
	defaultSmallGroupK = 0.2

	// defaultLargeGroupBlend is the alpha in
	// T_i = alpha*s_i + (1-alpha)*log1p(S_i)/sum(log1p(S_j)), balancing the
	// proportional share against the tail-compressing log share.
	defaultLargeGroupBlend = 0.5

	// defaultLargeGroupSmoothing is the gamma in B_i = 1 - gamma*(T_i - 1/n),
	// which shaves above-average shares and tops up below-average ones while
	// keeping the allocation strictly monotone in the raw total.
	defaultLargeGroupSmoothing = 0.25

	// duoAdjustmentRate scales the duo imbalance bonus
	// A = 1 + rate*|S1-S2|/max(S1,S2).
	duoAdjustmentRate = 0.1

	// pointsScale is the decimal precision of merit points; the rounding
	// residual is assigned to the largest share so the vector sums to the
	// pool exactly.
	pointsScale = 4

	defaultRoleWeight = 1.0
	percentFactor     = 100
)

// DefaultPool is the value pool used when the caller does not supply one.
var DefaultPool = decimal.NewFromInt(100)

// Input is one participant's aggregated contribution entering a calculation.
type Input struct {
	ParticipantID string
	Total         decimal.Decimal
	RoleWeight    float64 // 0 means default 1.0 (small_group only)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithSmallGroupK overrides the small-group dampening coefficient.
func WithSmallGroupK(k float64) Option {
	return func(e *Engine) {
		if k >= 0 {
			e.smallGroupK = k
		}
	}
}

// WithLargeGroupBlend overrides the large-group proportional/log blend.
func WithLargeGroupBlend(alpha float64) Option {
	return func(e *Engine) {
		if alpha >= 0 && alpha <= 1 {
			e.largeGroupBlend = alpha
		}
	}
}

// WithLargeGroupSmoothing overrides the large-group smoothing factor.
func WithLargeGroupSmoothing(gamma float64) Option {
	return func(e *Engine) {
		if gamma >= 0 && gamma < 1 {
			e.largeGroupSmoothing = gamma
		}
	}
}

// Engine computes merit calculations. Safe for concurrent use; it holds no
// mutable state.
type Engine struct {
	smallGroupK         float64
	largeGroupBlend     float64
	largeGroupSmoothing float64
}

// NewEngine creates a merit engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		smallGroupK:         defaultSmallGroupK,
		largeGroupBlend:     defaultLargeGroupBlend,
		largeGroupSmoothing: defaultLargeGroupSmoothing,
	}

	// Apply all options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SelectMethod maps a participant count to an allocation method.
// 1 -> single, 2 -> duo, 3..10 -> small_group, >10 -> large_group.
func SelectMethod(n int) (model.Method, error) {
	switch {
	case n <= 0:
		return "", ErrNoParticipants
	case n == 1:
		return model.MethodSingle, nil
	case n == 2:
		return model.MethodDuo, nil
	case n <= smallGroupMax:
		return model.MethodSmallGroup, nil
	default:
		return model.MethodLargeGroup, nil
	}
}

// Calculate produces a new draft MeritCalculation for the given participant
// totals. Input order is preserved in the participant vector. The result
// always satisfies sum(merit_points) == pool exactly and
// sum(merit_percentage) == 100 within rounding epsilon.
func (e *Engine) Calculate(workItemID string, inputs []Input, pool decimal.Decimal) (*model.MeritCalculation, error) {
	participants, method, err := e.Allocate(inputs, pool)
	if err != nil {
		return nil, err
	}

	return &model.MeritCalculation{
		ID:             uuid.NewString(),
		WorkItemID:     workItemID,
		Method:         method,
		TotalValuePool: pool,
		Participants:   participants,
		IsFinalized:    false,
		Revision:       1,
		CalculatedAt:   time.Now().UTC(),
	}, nil
}

// Allocate computes the participant vector without wrapping it in a new
// calculation. Used by Calculate and by draft recomputation, which must
// always rebuild the full vector from scratch rather than patch it.
func (e *Engine) Allocate(inputs []Input, pool decimal.Decimal) ([]model.MeritParticipant, model.Method, error) {
	n := len(inputs)
	method, err := SelectMethod(n)
	if err != nil {
		return nil, "", err
	}
	if pool.Sign() <= 0 {
		return nil, "", fmt.Errorf("%w: pool %s must be positive", ErrInvalidPool, pool)
	}

	totals := make([]float64, n)
	sum := 0.0
	for i, in := range inputs {
		if in.Total.Sign() < 0 {
			return nil, "", fmt.Errorf("%w: negative total %s for %s",
				ErrInvalidContribution, in.Total, in.ParticipantID)
		}
		totals[i] = in.Total.InexactFloat64()
		sum += totals[i]
	}

	var weights []float64
	switch {
	case sum == 0:
		// All contributions zero: equal split for every method.
		weights = equalWeights(n)
	case method == model.MethodSingle:
		weights = allocateSingle()
	case method == model.MethodDuo:
		weights = allocateDuo(totals)
	case method == model.MethodSmallGroup:
		weights = allocateSmallGroup(totals, sum, roleWeights(inputs), e.smallGroupK)
	default:
		weights = allocateLargeGroup(totals, sum, e.largeGroupBlend, e.largeGroupSmoothing)
	}

	fractions := normalize(weights)
	points := distribute(pool, fractions)

	participants := make([]model.MeritParticipant, n)
	for i, in := range inputs {
		rw := in.RoleWeight
		if rw == 0 {
			rw = defaultRoleWeight
		}
		participants[i] = model.MeritParticipant{
			ParticipantID:     in.ParticipantID,
			ContributionValue: in.Total,
			RoleWeight:        rw,
			MeritPoints:       points[i],
			MeritPercentage:   fractions[i] * percentFactor,
		}
	}
	return participants, method, nil
}

func roleWeights(inputs []Input) []float64 {
	ws := make([]float64, len(inputs))
	for i, in := range inputs {
		ws[i] = in.RoleWeight
		if ws[i] == 0 {
			ws[i] = defaultRoleWeight
		}
	}
	return ws
}

func equalWeights(n int) []float64 {
	ws := make([]float64, n)
	for i := range ws {
		ws[i] = 1
	}
	return ws
}

// normalize scales raw allocation weights into fractions summing to 1. The
// raw per-method factors deliberately do not sum to 1; renormalization is
// what guarantees the pool is fully distributed.
func normalize(weights []float64) []float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	fractions := make([]float64, len(weights))
	for i, w := range weights {
		fractions[i] = w / sum
	}
	return fractions
}

// distribute converts fractions into decimal points summing to pool exactly:
// each share is rounded to pointsScale and the rounding residual is assigned
// to the largest share.
func distribute(pool decimal.Decimal, fractions []float64) []decimal.Decimal {
	points := make([]decimal.Decimal, len(fractions))
	allocated := decimal.Zero
	largest := 0
	for i, f := range fractions {
		points[i] = pool.Mul(decimal.NewFromFloat(f)).Round(pointsScale)
		allocated = allocated.Add(points[i])
		if fractions[i] > fractions[largest] {
			largest = i
		}
	}
	if residual := pool.Sub(allocated); !residual.IsZero() {
		points[largest] = points[largest].Add(residual)
	}
	return points
}
