// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/adapters/ledger"
	eventqueue "github.com/teamforge/merit/internal/adapters/mq/queue"
	workerpool "github.com/teamforge/merit/internal/adapters/mq/worker"
	repository "github.com/teamforge/merit/internal/adapters/repository"
	"github.com/teamforge/merit/internal/domain/contribution"
	"github.com/teamforge/merit/internal/domain/dedupe"
	"github.com/teamforge/merit/internal/domain/equity"
	"github.com/teamforge/merit/internal/domain/merit"
	"github.com/teamforge/merit/internal/domain/model"
	"github.com/teamforge/merit/pkg/logger"
	"github.com/teamforge/merit/pkg/metrics"
)

// Service implements the API dependencies for the compensation engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	points     *ledger.Store
	equityCalc *equity.Calculator
	engine     *merit.Engine
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	// recalcLocks serializes recalculations per work item so a slow
	// recalculation cannot overwrite a newer one with stale records.
	recalcLocks sync.Map

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	totalValuePool    decimal.Decimal
	meritOpts         []merit.Option
	maxInvestment     decimal.Decimal
	investmentFunding equity.FundingSource
	hasMaxInvestment  bool

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the recalculation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithTotalValuePool sets the value pool distributed per work item.
func WithTotalValuePool(pool decimal.Decimal) Option {
	return func(s *Service) {
		if pool.Sign() > 0 {
			s.totalValuePool = pool
		}
	}
}

// WithMeritOptions forwards tuning options to the merit engine.
func WithMeritOptions(opts ...merit.Option) Option {
	return func(s *Service) {
		s.meritOpts = append(s.meritOpts, opts...)
	}
}

// WithMaxInvestment sets the per-round self-investment ceiling.
func WithMaxInvestment(max decimal.Decimal) Option {
	return func(s *Service) {
		if max.Sign() > 0 {
			s.maxInvestment = max
			s.hasMaxInvestment = true
		}
	}
}

// WithInvestmentFunding sets how self-investments are funded.
func WithInvestmentFunding(src equity.FundingSource) Option {
	return func(s *Service) {
		s.investmentFunding = src
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       runtime.NumCPU() * 2,
		queueSize:         10000,
		dedupeSize:        50000,
		totalValuePool:    merit.DefaultPool,
		investmentFunding: equity.FundingExternal,
		stopCh:            make(chan struct{}),
		logger:            nil, // set on Start
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting compensation engine...")

	s.store = repository.NewMemStore(ctx)
	s.points = ledger.NewStore()
	s.engine = merit.NewEngine(s.meritOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)

	equityOpts := []equity.Option{
		equity.WithFunding(s.investmentFunding, s.points),
	}
	if s.hasMaxInvestment {
		equityOpts = append(equityOpts, equity.WithMaxAmount(s.maxInvestment))
	}
	s.equityCalc = equity.NewCalculator(equityOpts...)

	// The service itself recalculates; workers drain the queue into it.
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "compensation engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Decimal("totalValuePool", s.totalValuePool),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping compensation engine...")

	// Shutdown closes the queue first, so the workers drain whatever is
	// buffered and exit on the closed channel instead of waiting out
	// their stop timeout.
	if s.workerPool != nil {
		_ = s.workerPool.Shutdown(context.Background())
	} else if q, ok := s.eventQueue.(*eventqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(context.Background(), "compensation engine stopped")
}

// SeenAndRecord atomically checks if a record id was seen and records it if
// not. Returns true if the record was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordContributionDuplicate()
	}
	return seen
}

// Unrecord removes a record id from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// SubmitContribution validates and stores a contribution record, then
// schedules a recalculation of the work item's draft merit vector.
func (s *Service) SubmitContribution(ctx context.Context, rec model.ContributionRecord) error {
	if err := contribution.Validate(rec); err != nil {
		metrics.RecordContributionRejected()
		return err
	}

	if err := s.store.AddRecord(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			// Replay after dedupe-cache eviction. The record is already
			// stored, but the recalculation below must still be scheduled.
			s.logger.Debug(ctx, "duplicate record id in store",
				logger.String("recordID", rec.ID),
			)
		} else {
			return err
		}
	} else {
		metrics.RecordContributionRecorded()
	}

	ev := eventqueue.Event{
		WorkItemID: rec.WorkItemID,
		RecordID:   rec.ID,
		EnqueuedAt: time.Now().UTC(),
	}
	if ok := s.eventQueue.Enqueue(ctx, ev); !ok {
		if s.eventQueue.IsClosed() {
			return fmt.Errorf("recalculation not scheduled: %w", eventqueue.ErrClosed)
		}
		return fmt.Errorf("recalculation not scheduled: %w", eventqueue.ErrFull)
	}
	return nil
}

// GetContributionTotals returns the weighted contribution totals per
// participant of a work item, sorted by participant id.
func (s *Service) GetContributionTotals(ctx context.Context, workItemID string) ([]model.ParticipantContribution, error) {
	records, err := s.store.Records(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	totals, err := contribution.Aggregate(workItemID, records)
	if err != nil {
		return nil, err
	}
	return contribution.Totals(workItemID, totals), nil
}

// Recalculate recomputes the draft merit calculation for a work item from
// its current contribution records. Finalized work items are left untouched.
func (s *Service) Recalculate(ctx context.Context, workItemID string) error {
	muAny, _ := s.recalcLocks.LoadOrStore(workItemID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	records, err := s.store.Records(ctx, workItemID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	totals, err := contribution.Aggregate(workItemID, records)
	if err != nil {
		return err
	}

	// Carry role weights, and any manually added participants without
	// records of their own, over from the existing draft.
	roleWeights := map[string]float64{}
	if existing, err := s.store.Get(ctx, workItemID); err == nil {
		if existing.IsFinalized {
			s.logger.Debug(ctx, "skipping recalculation of finalized work item",
				logger.String("workItemID", workItemID),
			)
			return nil
		}
		for _, p := range existing.Participants {
			roleWeights[p.ParticipantID] = p.RoleWeight
			if _, ok := totals[p.ParticipantID]; !ok {
				totals[p.ParticipantID] = decimal.Zero
			}
		}
	}

	inputs := buildInputs(totals, roleWeights)

	calc, err := s.engine.Calculate(workItemID, inputs, s.totalValuePool)
	if err != nil {
		return err
	}

	if err := s.store.PutDraft(ctx, calc); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			// Finalized between the read and the write; nothing to do.
			return nil
		}
		return err
	}
	return nil
}

// buildInputs turns a totals map into a deterministic engine input slice,
// applying any known role weights.
func buildInputs(totals map[string]decimal.Decimal, roleWeights map[string]float64) []merit.Input {
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	inputs := make([]merit.Input, 0, len(ids))
	for _, id := range ids {
		in := merit.Input{ParticipantID: id, Total: totals[id]}
		if w, ok := roleWeights[id]; ok {
			in.RoleWeight = w
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// AddMeritParticipant adds a participant to a draft calculation and
// recomputes the full vector from the work item's contribution records.
// The added participant enters with their recorded totals, which may be
// zero.
func (s *Service) AddMeritParticipant(ctx context.Context, workItemID, participantID string) (model.MeritCalculation, error) {
	return s.editParticipants(ctx, workItemID, participantID, true)
}

// RemoveMeritParticipant removes a participant from a draft calculation
// and recomputes the full vector for the remaining participants. Removing
// the last participant is rejected. A removed participant who still has
// contribution records rejoins on the next record-driven recalculation.
func (s *Service) RemoveMeritParticipant(ctx context.Context, workItemID, participantID string) (model.MeritCalculation, error) {
	return s.editParticipants(ctx, workItemID, participantID, false)
}

func (s *Service) editParticipants(ctx context.Context, workItemID, participantID string, add bool) (model.MeritCalculation, error) {
	if participantID == "" {
		return model.MeritCalculation{}, fmt.Errorf("%w: empty participant id", merit.ErrInvalidContribution)
	}

	muAny, _ := s.recalcLocks.LoadOrStore(workItemID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	records, err := s.store.Records(ctx, workItemID)
	if err != nil {
		return model.MeritCalculation{}, err
	}
	recorded, err := contribution.Aggregate(workItemID, records)
	if err != nil {
		return model.MeritCalculation{}, err
	}

	return s.store.Update(ctx, workItemID, func(c *model.MeritCalculation) error {
		totals := map[string]decimal.Decimal{}
		roleWeights := map[string]float64{}
		for _, p := range c.Participants {
			roleWeights[p.ParticipantID] = p.RoleWeight
			if t, ok := recorded[p.ParticipantID]; ok {
				totals[p.ParticipantID] = t
			} else {
				totals[p.ParticipantID] = decimal.Zero
			}
		}

		if add {
			if _, ok := totals[participantID]; ok {
				return fmt.Errorf("%w: participant %s already present",
					merit.ErrInvalidContribution, participantID)
			}
			if t, ok := recorded[participantID]; ok {
				totals[participantID] = t
			} else {
				totals[participantID] = decimal.Zero
			}
		} else {
			if _, ok := totals[participantID]; !ok {
				return fmt.Errorf("%w: participant %s", repository.ErrNotFound, participantID)
			}
			delete(totals, participantID)
		}

		recalced, err := s.engine.Calculate(workItemID, buildInputs(totals, roleWeights), c.TotalValuePool)
		if err != nil {
			return err
		}
		c.Participants = recalced.Participants
		c.Method = recalced.Method
		c.CalculatedAt = recalced.CalculatedAt
		return nil
	})
}

// GetMeritCalculation returns the stored calculation for a work item.
func (s *Service) GetMeritCalculation(ctx context.Context, workItemID string) (model.MeritCalculation, error) {
	return s.store.Get(ctx, workItemID)
}

// SaveMeritCalculation applies a manual adjustment to a draft calculation.
// The caller's revision must match the stored one, and the adjusted vector
// must still distribute the whole pool.
func (s *Service) SaveMeritCalculation(ctx context.Context, workItemID string, revision int, participants []model.MeritParticipant) (model.MeritCalculation, error) {
	if len(participants) == 0 {
		return model.MeritCalculation{}, merit.ErrNoParticipants
	}
	method, err := merit.SelectMethod(len(participants))
	if err != nil {
		return model.MeritCalculation{}, err
	}

	return s.store.Update(ctx, workItemID, func(c *model.MeritCalculation) error {
		if c.Revision != revision {
			return fmt.Errorf("%w: have revision %d, want %d",
				repository.ErrStaleRevision, revision, c.Revision)
		}
		if err := validateVector(participants, c.TotalValuePool); err != nil {
			return err
		}
		c.Participants = participants
		c.Method = method
		c.CalculatedAt = time.Now().UTC()
		return nil
	})
}

// percentTolerance bounds the drift allowed on a percentage sum.
const percentTolerance = 1e-6

// validateVector checks that an adjusted participant vector still sums to
// the pool in points and to 100 in percentages, with unique ids and sane
// role weights. Role weights feed back into later recalculations, so a
// negative one would poison the allocator.
func validateVector(participants []model.MeritParticipant, pool decimal.Decimal) error {
	pointsSum := decimal.Zero
	pctSum := 0.0
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.ParticipantID == "" {
			return fmt.Errorf("%w: empty participant id", merit.ErrInvalidContribution)
		}
		if _, ok := seen[p.ParticipantID]; ok {
			return fmt.Errorf("%w: duplicate participant %s",
				merit.ErrInvalidContribution, p.ParticipantID)
		}
		seen[p.ParticipantID] = struct{}{}
		if p.MeritPoints.Sign() < 0 || p.MeritPercentage < 0 {
			return fmt.Errorf("%w: participant %s has a negative share",
				merit.ErrInvalidContribution, p.ParticipantID)
		}
		if p.RoleWeight < 0 {
			return fmt.Errorf("%w: participant %s has a negative role weight",
				merit.ErrInvalidContribution, p.ParticipantID)
		}
		pointsSum = pointsSum.Add(p.MeritPoints)
		pctSum += p.MeritPercentage
	}
	if !pointsSum.Equal(pool) {
		return fmt.Errorf("%w: points sum %s does not match pool %s",
			merit.ErrInvalidContribution, pointsSum, pool)
	}
	if diff := pctSum - 100; diff > percentTolerance || diff < -percentTolerance {
		return fmt.Errorf("%w: percentages sum to %v, want 100",
			merit.ErrInvalidContribution, pctSum)
	}
	return nil
}

// FinalizeMeritCalculation locks a draft forever and credits each
// participant's points account with the earned merit points. Zero shares
// produce no ledger entry. The credits are applied as one atomic batch,
// so a failed finalize never leaves a participant credited.
func (s *Service) FinalizeMeritCalculation(ctx context.Context, workItemID string) (model.MeritCalculation, error) {
	return s.store.Finalize(ctx, workItemID, func(c model.MeritCalculation) error {
		credits := make([]ledger.Credit, 0, len(c.Participants))
		for _, p := range c.Participants {
			if p.MeritPoints.Sign() <= 0 {
				continue
			}
			credits = append(credits, ledger.Credit{AccountID: p.ParticipantID, Points: p.MeritPoints})
		}
		if len(credits) == 0 {
			return nil
		}
		reason := "merit award for work item " + c.WorkItemID
		if _, err := s.points.ApplyBatch(ctx, model.ChangeEarn, credits, reason, c.WorkItemID); err != nil {
			return fmt.Errorf("crediting merit awards: %w", err)
		}
		return nil
	})
}

// CreateSelfInvestment applies a self-funded capital injection to an entity
// valuation.
func (s *Service) CreateSelfInvestment(ctx context.Context, entityType model.EntityType, entityID string, amount decimal.Decimal, votingRoundID string) (model.SelfInvestment, error) {
	inv, err := s.equityCalc.ApplySelfInvestment(ctx, entityType, entityID, amount, votingRoundID)
	if err != nil {
		metrics.RecordInvestmentRejected()
		return model.SelfInvestment{}, err
	}
	metrics.RecordInvestmentApplied()
	s.logger.Info(ctx, "self investment applied",
		logger.String("entity", string(entityType)+"/"+entityID),
		logger.Decimal("amount", amount),
		logger.Decimal("equityAfter", inv.EquityAfter),
	)
	return inv, nil
}

// SetEntityValuation stores the 100%-ownership baseline valuation of an
// entity.
func (s *Service) SetEntityValuation(ctx context.Context, entityType model.EntityType, entityID string, valuation decimal.Decimal) error {
	if err := s.equityCalc.SetValuation(entityType, entityID, valuation); err != nil {
		return err
	}
	s.logger.Debug(ctx, "valuation stored",
		logger.String("entity", string(entityType)+"/"+entityID),
		logger.Decimal("valuation", valuation),
	)
	return nil
}

// GetEntityValuation returns the current valuation of an entity. Unknown
// entities report a zero baseline.
func (s *Service) GetEntityValuation(_ context.Context, entityType model.EntityType, entityID string) (model.EntityValuation, error) {
	if !entityType.Valid() || entityID == "" {
		return model.EntityValuation{}, fmt.Errorf("%w: %s/%s", equity.ErrInvalidEntity, entityType, entityID)
	}
	return s.equityCalc.Valuation(entityType, entityID), nil
}

// ApplyLedgerEntry applies a signed balance change to a points account.
func (s *Service) ApplyLedgerEntry(ctx context.Context, accountID string, changeType model.ChangeType, points decimal.Decimal, reason, relatedProjectID string) (model.PointsLedgerEntry, error) {
	return s.points.Apply(ctx, accountID, changeType, points, reason, relatedProjectID)
}

// TransferPoints atomically moves points between two accounts.
func (s *Service) TransferPoints(ctx context.Context, fromAccountID, toAccountID string, points decimal.Decimal, reason string) (model.PointsLedgerEntry, model.PointsLedgerEntry, error) {
	return s.points.Transfer(ctx, fromAccountID, toAccountID, points, reason)
}

// GetAccountSummary returns the balance aggregate for an account.
func (s *Service) GetAccountSummary(ctx context.Context, accountID string) (model.PointsAccount, error) {
	return s.points.Summary(ctx, accountID)
}

// GetAccountHistory returns the full ledger history of an account in
// application order.
func (s *Service) GetAccountHistory(ctx context.Context, accountID string) ([]model.PointsLedgerEntry, error) {
	return s.points.History(ctx, accountID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		totalCalcs := s.store.Count(ctx)
		totalAccounts := s.points.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalCalculations"] = totalCalcs
		stats["totalAccounts"] = totalAccounts
		stats["totalValuePool"] = s.totalValuePool.String()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTotalCalculations(totalCalcs)
	}

	return stats
}
