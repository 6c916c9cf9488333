// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/domain/dedupe"
	"github.com/teamforge/merit/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// SubmitContribution validates, stores, and schedules recalculation
	// for a contribution record.
	SubmitContribution(ctx context.Context, rec model.ContributionRecord) error

	// GetContributionTotals returns the weighted totals per participant
	// of a work item.
	GetContributionTotals(ctx context.Context, workItemID string) ([]model.ParticipantContribution, error)

	// Merit calculation lifecycle.
	GetMeritCalculation(ctx context.Context, workItemID string) (model.MeritCalculation, error)
	SaveMeritCalculation(ctx context.Context, workItemID string, revision int, participants []model.MeritParticipant) (model.MeritCalculation, error)
	AddMeritParticipant(ctx context.Context, workItemID, participantID string) (model.MeritCalculation, error)
	RemoveMeritParticipant(ctx context.Context, workItemID, participantID string) (model.MeritCalculation, error)
	FinalizeMeritCalculation(ctx context.Context, workItemID string) (model.MeritCalculation, error)

	// Equity and points.
	CreateSelfInvestment(ctx context.Context, entityType model.EntityType, entityID string, amount decimal.Decimal, votingRoundID string) (model.SelfInvestment, error)
	SetEntityValuation(ctx context.Context, entityType model.EntityType, entityID string, valuation decimal.Decimal) error
	GetEntityValuation(ctx context.Context, entityType model.EntityType, entityID string) (model.EntityValuation, error)
	ApplyLedgerEntry(ctx context.Context, accountID string, changeType model.ChangeType, points decimal.Decimal, reason, relatedProjectID string) (model.PointsLedgerEntry, error)
	TransferPoints(ctx context.Context, fromAccountID, toAccountID string, points decimal.Decimal, reason string) (model.PointsLedgerEntry, model.PointsLedgerEntry, error)
	GetAccountSummary(ctx context.Context, accountID string) (model.PointsAccount, error)
	GetAccountHistory(ctx context.Context, accountID string) ([]model.PointsLedgerEntry, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	contributionsHandler *ContributionsHandler
	meritHandler         *MeritHandler
	investmentsHandler   *InvestmentsHandler
	valuationsHandler    *ValuationsHandler
	ledgerHandler        *LedgerHandler
	accountsHandler      *AccountsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(statsProvider),
		contributionsHandler: NewContributionsHandler(deps),
		meritHandler:         NewMeritHandler(deps),
		investmentsHandler:   NewInvestmentsHandler(deps),
		valuationsHandler:    NewValuationsHandler(deps),
		ledgerHandler:        NewLedgerHandler(deps),
		accountsHandler:      NewAccountsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/contributions", MetricsMiddleware(s.contributionsHandler.HandlePostContribution, "contributions"))
	mux.HandleFunc("/contributions/", MetricsMiddleware(s.contributionsHandler.HandleGetTotals, "contribution_totals"))
	mux.HandleFunc("/merit/", MetricsMiddleware(s.meritHandler.HandleMerit, "merit"))
	mux.HandleFunc("/investments", MetricsMiddleware(s.investmentsHandler.HandlePostInvestment, "investments"))
	mux.HandleFunc("/valuations", MetricsMiddleware(s.valuationsHandler.HandleValuations, "valuations"))
	mux.HandleFunc("/valuations/", MetricsMiddleware(s.valuationsHandler.HandleValuations, "valuations"))
	mux.HandleFunc("/ledger/entries", MetricsMiddleware(s.ledgerHandler.HandlePostEntry, "ledger_entries"))
	mux.HandleFunc("/ledger/transfers", MetricsMiddleware(s.ledgerHandler.HandlePostTransfer, "ledger_transfers"))
	mux.HandleFunc("/accounts/", MetricsMiddleware(s.accountsHandler.HandleGetAccount, "accounts"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// pathParam extracts the single path segment after prefix, or "" when the
// path has extra segments.
func pathParam(path, prefix string) string {
	p := strings.TrimPrefix(path, prefix)
	if p == "" || strings.Contains(p, "/") {
		return ""
	}
	return p
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
