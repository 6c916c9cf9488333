// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/teamforge/merit/internal/adapters/repository"
	meritdom "github.com/teamforge/merit/internal/domain/merit"
	"github.com/teamforge/merit/internal/domain/model"
)

// MeritDependencies defines the interface for merit calculation operations.
type MeritDependencies interface {
	GetMeritCalculation(ctx context.Context, workItemID string) (model.MeritCalculation, error)
	SaveMeritCalculation(ctx context.Context, workItemID string, revision int, participants []model.MeritParticipant) (model.MeritCalculation, error)
	AddMeritParticipant(ctx context.Context, workItemID, participantID string) (model.MeritCalculation, error)
	RemoveMeritParticipant(ctx context.Context, workItemID, participantID string) (model.MeritCalculation, error)
	FinalizeMeritCalculation(ctx context.Context, workItemID string) (model.MeritCalculation, error)
}

// MeritHandler handles merit calculation requests.
type MeritHandler struct {
	deps MeritDependencies
}

// NewMeritHandler creates a new merit handler.
func NewMeritHandler(deps MeritDependencies) *MeritHandler {
	return &MeritHandler{deps: deps}
}

// saveRequest mirrors the wire schema for PUT /merit/{work_item_id}.
type saveRequest struct {
	Revision     int                      `json:"revision"`
	Participants []model.MeritParticipant `json:"participants"`
}

// participantRequest mirrors the wire schema for
// POST /merit/{work_item_id}/participants.
type participantRequest struct {
	ParticipantID string `json:"participant_id"`
}

// HandleMerit routes GET and PUT /merit/{work_item_id} plus
// POST /merit/{work_item_id}/finalize and the participant edits
// POST /merit/{work_item_id}/participants and
// DELETE /merit/{work_item_id}/participants/{participant_id}.
func (h *MeritHandler) HandleMerit(w http.ResponseWriter, r *http.Request) {
	const op = "api.merit"
	rest := strings.TrimPrefix(r.URL.Path, "/merit/")
	if workItemID, ok := strings.CutSuffix(rest, "/finalize"); ok {
		if workItemID == "" || strings.Contains(workItemID, "/") || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		h.handleFinalize(w, r, workItemID)
		return
	}
	if workItemID, ok := strings.CutSuffix(rest, "/participants"); ok {
		if workItemID == "" || strings.Contains(workItemID, "/") || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		h.handleAddParticipant(w, r, workItemID)
		return
	}
	if workItemID, participantID, ok := strings.Cut(rest, "/participants/"); ok {
		if workItemID == "" || participantID == "" || r.Method != http.MethodDelete {
			http.NotFound(w, r)
			return
		}
		h.handleRemoveParticipant(w, r, workItemID, participantID)
		return
	}
	workItemID := pathParam(r.URL.Path, "/merit/")
	if workItemID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, workItemID)
	case http.MethodPut:
		h.handleSave(w, r, workItemID)
	default:
		http.NotFound(w, r)
	}
}

func (h *MeritHandler) handleGet(w http.ResponseWriter, r *http.Request, workItemID string) {
	const op = "api.get_merit"
	calc, err := h.deps.GetMeritCalculation(r.Context(), workItemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *MeritHandler) handleSave(w http.ResponseWriter, r *http.Request, workItemID string) {
	const op = "api.save_merit"
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	calc, err := h.deps.SaveMeritCalculation(r.Context(), workItemID, req.Revision, req.Participants)
	if err != nil {
		writeMeritError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *MeritHandler) handleAddParticipant(w http.ResponseWriter, r *http.Request, workItemID string) {
	const op = "api.add_participant"
	var req participantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	calc, err := h.deps.AddMeritParticipant(r.Context(), workItemID, req.ParticipantID)
	if err != nil {
		writeMeritError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *MeritHandler) handleRemoveParticipant(w http.ResponseWriter, r *http.Request, workItemID, participantID string) {
	const op = "api.remove_participant"
	calc, err := h.deps.RemoveMeritParticipant(r.Context(), workItemID, participantID)
	if err != nil {
		writeMeritError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *MeritHandler) handleFinalize(w http.ResponseWriter, r *http.Request, workItemID string) {
	const op = "api.finalize_merit"
	calc, err := h.deps.FinalizeMeritCalculation(r.Context(), workItemID)
	if err != nil {
		writeMeritError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// writeMeritError translates lifecycle errors to HTTP statuses.
func writeMeritError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrAlreadyFinalized):
		writeError(w, http.StatusConflict, "already_finalized", err)
	case errors.Is(err, repository.ErrStaleRevision):
		writeError(w, http.StatusConflict, "stale_revision", err)
	case errors.Is(err, meritdom.ErrNoParticipants),
		errors.Is(err, meritdom.ErrInvalidContribution),
		errors.Is(err, meritdom.ErrInvalidPool):
		writeError(w, http.StatusBadRequest, "invalid_calculation", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
