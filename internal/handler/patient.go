package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careconnect/pairing-server/internal/service"
)

type PatientHandler struct {
	patientService *service.PatientService
}

func NewPatientHandler(patientService *service.PatientService) *PatientHandler {
	return &PatientHandler{patientService: patientService}
}

func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/search", h.Search)
	return r
}

// GET /api/patients/search?q=&limit=&offset=
func (h *PatientHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	page := ParsePagination(r)
	results, total, err := h.patientService.Search(r.Context(), user, r.URL.Query().Get("q"), page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patients": results,
		"total":    total,
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}
