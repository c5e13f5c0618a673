package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/httputil"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/service"
)

type WorkspaceHandler struct {
	workspaceService *service.WorkspaceService
}

func NewWorkspaceHandler(workspaceService *service.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaceService: workspaceService}
}

func (h *WorkspaceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{connectionID}", h.Get)
	r.Put("/{connectionID}", h.UpdatePlan)
	r.Post("/{connectionID}/entries", h.AddEntry)

	return r
}

type updatePlanRequest struct {
	Title                *string `json:"title"`
	Summary              *string `json:"summary"`
	PrimaryDiagnosis     *string `json:"primary_diagnosis"`
	TreatmentPlan        *string `json:"treatment_plan"`
	MedicationOverview   *string `json:"medication_overview"`
	LifestyleGuidelines  *string `json:"lifestyle_guidelines"`
	FollowUpInstructions *string `json:"follow_up_instructions"`
	NextReviewDate       *string `json:"next_review_date"`
}

type addEntryRequest struct {
	EntryType  string `json:"entry_type"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Details    string `json:"details"`
	Visibility string `json:"visibility"`
	IsCritical bool   `json:"is_critical"`
}

// GET /api/workspaces
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	workspaces, err := h.workspaceService.ListWorkspaces(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workspaces": workspaces,
		"total":      len(workspaces),
	})
}

// GET /api/workspaces/{connectionID}
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	ws, err := h.workspaceService.GetWorkspace(r.Context(), chi.URLParam(r, "connectionID"), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ws)
}

// PUT /api/workspaces/{connectionID}
func (h *WorkspaceHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req updatePlanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	params := model.UpdateCarePlanParams{
		ConnectionID:         chi.URLParam(r, "connectionID"),
		Title:                req.Title,
		Summary:              req.Summary,
		PrimaryDiagnosis:     req.PrimaryDiagnosis,
		TreatmentPlan:        req.TreatmentPlan,
		MedicationOverview:   req.MedicationOverview,
		LifestyleGuidelines:  req.LifestyleGuidelines,
		FollowUpInstructions: req.FollowUpInstructions,
	}
	if req.NextReviewDate != nil {
		date, err := parseDate(*req.NextReviewDate)
		if err != nil {
			writeError(w, err)
			return
		}
		params.NextReviewDate = &date
	}

	ws, err := h.workspaceService.UpdatePlan(r.Context(), user.ID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ws)
}

// POST /api/workspaces/{connectionID}/entries
func (h *WorkspaceHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req addEntryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.workspaceService.AddEntry(r.Context(), user.ID, model.CreateTimelineEntryParams{
		ConnectionID: chi.URLParam(r, "connectionID"),
		EntryType:    model.EntryType(req.EntryType),
		Title:        req.Title,
		Summary:      req.Summary,
		Details:      req.Details,
		Visibility:   model.Visibility(req.Visibility),
		IsCritical:   req.IsCritical,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry})
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperrors.InvalidParameter("next_review_date", "must be YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}
