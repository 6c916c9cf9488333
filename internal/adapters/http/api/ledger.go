// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/adapters/ledger"
	"github.com/teamforge/merit/internal/domain/model"
)

// LedgerDependencies defines the interface for points ledger operations.
type LedgerDependencies interface {
	ApplyLedgerEntry(ctx context.Context, accountID string, changeType model.ChangeType, points decimal.Decimal, reason, relatedProjectID string) (model.PointsLedgerEntry, error)
	TransferPoints(ctx context.Context, fromAccountID, toAccountID string, points decimal.Decimal, reason string) (model.PointsLedgerEntry, model.PointsLedgerEntry, error)
}

// LedgerHandler handles points ledger requests.
type LedgerHandler struct {
	deps LedgerDependencies
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(deps LedgerDependencies) *LedgerHandler {
	return &LedgerHandler{deps: deps}
}

// entryRequest mirrors the wire schema for POST /ledger/entries.
type entryRequest struct {
	AccountID        string          `json:"account_id"`
	ChangeType       string          `json:"change_type"`
	Points           decimal.Decimal `json:"points"`
	Reason           string          `json:"reason"`
	RelatedProjectID string          `json:"related_project_id,omitempty"`
}

func (e entryRequest) validate() error {
	switch {
	case strings.TrimSpace(e.AccountID) == "":
		return errors.New("missing account_id")
	case strings.TrimSpace(e.ChangeType) == "":
		return errors.New("missing change_type")
	case strings.TrimSpace(e.Reason) == "":
		return errors.New("missing reason")
	}
	return nil
}

// transferRequest mirrors the wire schema for POST /ledger/transfers.
type transferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Points        decimal.Decimal `json:"points"`
	Reason        string          `json:"reason"`
}

func (t transferRequest) validate() error {
	switch {
	case strings.TrimSpace(t.FromAccountID) == "":
		return errors.New("missing from_account_id")
	case strings.TrimSpace(t.ToAccountID) == "":
		return errors.New("missing to_account_id")
	case strings.TrimSpace(t.Reason) == "":
		return errors.New("missing reason")
	}
	return nil
}

// transferResponse carries both legs of a completed transfer.
type transferResponse struct {
	Out model.PointsLedgerEntry `json:"out"`
	In  model.PointsLedgerEntry `json:"in"`
}

// HandlePostEntry handles POST /ledger/entries requests.
func (h *LedgerHandler) HandlePostEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_ledger_entry"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req entryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	entry, err := h.deps.ApplyLedgerEntry(r.Context(), req.AccountID, model.ChangeType(req.ChangeType), req.Points, req.Reason, req.RelatedProjectID)
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandlePostTransfer handles POST /ledger/transfers requests.
func (h *LedgerHandler) HandlePostTransfer(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_transfer"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, in, err := h.deps.TransferPoints(r.Context(), req.FromAccountID, req.ToAccountID, req.Points, req.Reason)
	if err != nil {
		writeLedgerError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, transferResponse{Out: out, In: in})
}

// writeLedgerError translates ledger errors to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidDelta), errors.Is(err, ledger.ErrInvalidTransferTarget):
		writeError(w, http.StatusBadRequest, "invalid_entry", err)
	case errors.Is(err, ledger.ErrInsufficientPoints):
		writeError(w, http.StatusConflict, "insufficient_points", err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
