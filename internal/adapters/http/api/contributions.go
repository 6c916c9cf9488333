// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamforge/merit/internal/adapters/mq/queue"
	"github.com/teamforge/merit/internal/domain/contribution"
	"github.com/teamforge/merit/internal/domain/dedupe"
	"github.com/teamforge/merit/internal/domain/model"
)

// ContributionDependencies defines the interface for contribution intake.
type ContributionDependencies interface {
	dedupe.Deduper
	SubmitContribution(ctx context.Context, rec model.ContributionRecord) error
	GetContributionTotals(ctx context.Context, workItemID string) ([]model.ParticipantContribution, error)
}

// ContributionsHandler handles contribution record requests.
type ContributionsHandler struct {
	deps ContributionDependencies
}

// NewContributionsHandler creates a new contributions handler.
func NewContributionsHandler(deps ContributionDependencies) *ContributionsHandler {
	return &ContributionsHandler{deps: deps}
}

// contributionRequest mirrors the wire schema for POST /contributions.
type contributionRequest struct {
	RecordID      string          `json:"record_id"`
	WorkItemID    string          `json:"work_item_id"`
	ContributorID string          `json:"contributor_id"`
	Type          string          `json:"type"`
	RawScore      decimal.Decimal `json:"raw_score"`
	Weight        decimal.Decimal `json:"weight"`
	RecorderID    string          `json:"recorder_id"`
	Evidence      string          `json:"evidence,omitempty"`
}

func (c contributionRequest) validate() error {
	switch {
	case strings.TrimSpace(c.RecordID) == "":
		return errors.New("missing record_id")
	case strings.TrimSpace(c.WorkItemID) == "":
		return errors.New("missing work_item_id")
	case strings.TrimSpace(c.ContributorID) == "":
		return errors.New("missing contributor_id")
	case strings.TrimSpace(c.Type) == "":
		return errors.New("missing type")
	case strings.TrimSpace(c.RecorderID) == "":
		return errors.New("missing recorder_id")
	}
	return nil
}

func (c contributionRequest) toModel() model.ContributionRecord {
	return model.ContributionRecord{
		ID:            c.RecordID,
		WorkItemID:    c.WorkItemID,
		ContributorID: c.ContributorID,
		Type:          model.ContributionType(c.Type),
		RawScore:      c.RawScore,
		Weight:        c.Weight,
		RecorderID:    c.RecorderID,
		Evidence:      c.Evidence,
		CreatedAt:     time.Now().UTC(),
	}
}

// HandlePostContribution handles POST /contributions requests.
func (h *ContributionsHandler) HandlePostContribution(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_contribution"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req contributionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), req.RecordID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	if err := h.deps.SubmitContribution(r.Context(), req.toModel()); err != nil {
		// Roll back the "seen" status so the client can retry.
		h.deps.Unrecord(r.Context(), req.RecordID)
		switch {
		case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		case errors.Is(err, contribution.ErrInvalidValue):
			writeError(w, http.StatusBadRequest, "invalid_value", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}

// HandleGetTotals handles GET /contributions/{work_item_id} requests.
func (h *ContributionsHandler) HandleGetTotals(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_contribution_totals"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	workItemID := pathParam(r.URL.Path, "/contributions/")
	if workItemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	totals, err := h.deps.GetContributionTotals(r.Context(), workItemID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
