// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/domain/equity"
	"github.com/teamforge/merit/internal/domain/model"
)

// InvestmentDependencies defines the interface for self-investment intake.
type InvestmentDependencies interface {
	CreateSelfInvestment(ctx context.Context, entityType model.EntityType, entityID string, amount decimal.Decimal, votingRoundID string) (model.SelfInvestment, error)
}

// InvestmentsHandler handles self-investment requests.
type InvestmentsHandler struct {
	deps InvestmentDependencies
}

// NewInvestmentsHandler creates a new investments handler.
func NewInvestmentsHandler(deps InvestmentDependencies) *InvestmentsHandler {
	return &InvestmentsHandler{deps: deps}
}

// investmentRequest mirrors the wire schema for POST /investments.
type investmentRequest struct {
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Amount        decimal.Decimal `json:"amount"`
	VotingRoundID string          `json:"voting_round_id"`
}

func (i investmentRequest) validate() error {
	switch {
	case strings.TrimSpace(i.EntityType) == "":
		return errors.New("missing entity_type")
	case strings.TrimSpace(i.EntityID) == "":
		return errors.New("missing entity_id")
	case strings.TrimSpace(i.VotingRoundID) == "":
		return errors.New("missing voting_round_id")
	}
	return nil
}

// HandlePostInvestment handles POST /investments requests.
func (h *InvestmentsHandler) HandlePostInvestment(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_investment"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req investmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	inv, err := h.deps.CreateSelfInvestment(r.Context(), model.EntityType(req.EntityType), req.EntityID, req.Amount, req.VotingRoundID)
	if err != nil {
		switch {
		case errors.Is(err, equity.ErrOutOfRange), errors.Is(err, equity.ErrInvalidEntity):
			writeError(w, http.StatusBadRequest, "invalid_investment", err)
		case errors.Is(err, equity.ErrInsufficientBalance):
			writeError(w, http.StatusConflict, "insufficient_points", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}
