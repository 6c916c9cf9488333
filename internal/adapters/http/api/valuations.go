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

// ValuationDependencies defines the interface for entity valuations.
type ValuationDependencies interface {
	SetEntityValuation(ctx context.Context, entityType model.EntityType, entityID string, valuation decimal.Decimal) error
	GetEntityValuation(ctx context.Context, entityType model.EntityType, entityID string) (model.EntityValuation, error)
}

// ValuationsHandler handles entity valuation requests.
type ValuationsHandler struct {
	deps ValuationDependencies
}

// NewValuationsHandler creates a new valuations handler.
func NewValuationsHandler(deps ValuationDependencies) *ValuationsHandler {
	return &ValuationsHandler{deps: deps}
}

// valuationRequest mirrors the wire schema for PUT /valuations.
type valuationRequest struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Valuation  decimal.Decimal `json:"valuation"`
}

// HandleValuations routes PUT /valuations and GET /valuations/{type}/{id}.
func (h *ValuationsHandler) HandleValuations(w http.ResponseWriter, r *http.Request) {
	const op = "api.valuations"
	switch r.Method {
	case http.MethodPut:
		var req valuationRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		err := h.deps.SetEntityValuation(r.Context(), model.EntityType(req.EntityType), req.EntityID, req.Valuation)
		if err != nil {
			if errors.Is(err, equity.ErrInvalidEntity) || errors.Is(err, equity.ErrOutOfRange) {
				writeError(w, http.StatusBadRequest, "invalid_valuation", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{Status: "stored"})
	case http.MethodGet:
		rest := strings.TrimPrefix(r.URL.Path, "/valuations/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		val, err := h.deps.GetEntityValuation(r.Context(), model.EntityType(parts[0]), parts[1])
		if err != nil {
			if errors.Is(err, equity.ErrInvalidEntity) {
				writeError(w, http.StatusBadRequest, "invalid_valuation", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, val)
	default:
		http.NotFound(w, r)
	}
}
