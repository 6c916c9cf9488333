// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/teamforge/merit/internal/adapters/ledger"
	"github.com/teamforge/merit/internal/domain/model"
)

// AccountDependencies defines the interface for account lookups.
type AccountDependencies interface {
	GetAccountSummary(ctx context.Context, accountID string) (model.PointsAccount, error)
	GetAccountHistory(ctx context.Context, accountID string) ([]model.PointsLedgerEntry, error)
}

// AccountsHandler handles account summary requests.
type AccountsHandler struct {
	deps AccountDependencies
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(deps AccountDependencies) *AccountsHandler {
	return &AccountsHandler{deps: deps}
}

// accountResponse bundles the balance aggregate with its optional history.
type accountResponse struct {
	Account model.PointsAccount       `json:"account"`
	History []model.PointsLedgerEntry `json:"history,omitempty"`
}

// HandleGetAccount handles GET /accounts/{user_id}?history=true requests.
func (h *AccountsHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_account"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	accountID := pathParam(r.URL.Path, "/accounts/")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	summary, err := h.deps.GetAccountSummary(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	resp := accountResponse{Account: summary}
	if r.URL.Query().Get("history") == "true" {
		history, err := h.deps.GetAccountHistory(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		resp.History = history
	}
	writeJSON(w, http.StatusOK, resp)
}
