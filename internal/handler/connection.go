package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/httputil"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/service"
)

type ConnectionHandler struct {
	connService    *service.ConnectionService
	pairingService *service.PairingService
}

func NewConnectionHandler(connService *service.ConnectionService, pairingService *service.PairingService) *ConnectionHandler {
	return &ConnectionHandler{
		connService:    connService,
		pairingService: pairingService,
	}
}

func (h *ConnectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/respond", h.Respond)
	r.Delete("/{id}", h.Remove)

	return r
}

type createConnectionRequest struct {
	DoctorID  string  `json:"doctor_id"`
	PatientID string  `json:"patient_id"`
	Note      *string `json:"note"`
}

type respondConnectionRequest struct {
	Decision string  `json:"decision"`
	Note     *string `json:"note"`
}

// POST /api/connections
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req createConnectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.pairingService.Connect(r.Context(), user.ID, req.DoctorID, req.PatientID, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"connection": formatConnection(c)})
}

// GET /api/connections/{id}
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	c, err := h.connService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !c.IsParticipant(user.ID) {
		writeError(w, apperrors.Forbidden("You are not a participant in this connection"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"connection": formatConnection(c)})
}

// POST /api/connections/{id}/respond
func (h *ConnectionHandler) Respond(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req respondConnectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		c   *model.Connection
		err error
	)
	switch model.Decision(req.Decision) {
	case model.DecisionAccepted:
		c, err = h.pairingService.AcceptConnection(r.Context(), id, user.ID, req.Note)
	case model.DecisionRejected:
		c, err = h.pairingService.RejectConnection(r.Context(), id, user.ID, req.Note)
	case "":
		err = apperrors.MissingRequired("decision")
	default:
		err = apperrors.InvalidParameter("decision", "must be accepted or rejected")
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"connection": formatConnection(c)})
}

// DELETE /api/connections/{id}
func (h *ConnectionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	if err := h.connService.Remove(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/connections?doctor_id=|patient_id=&status=
//
// Without a filter the caller's own role decides which side is listed.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	query := r.URL.Query()
	doctorID := query.Get("doctor_id")
	patientID := query.Get("patient_id")
	if doctorID != "" && patientID != "" {
		writeError(w, apperrors.InvalidParameter("filter", "use either doctor_id or patient_id"))
		return
	}
	for field, id := range map[string]string{"doctor_id": doctorID, "patient_id": patientID} {
		if err := requireSelf(user, id, field); err != nil {
			writeError(w, err)
			return
		}
	}

	var status *model.ConnectionStatus
	if s := query.Get("status"); s != "" {
		st := model.ConnectionStatus(s)
		status = &st
	}

	var (
		connections []model.Connection
		err         error
	)
	switch {
	case doctorID != "":
		connections, err = h.connService.ListForDoctor(r.Context(), user.ID, status)
	case patientID != "":
		connections, err = h.connService.ListForPatient(r.Context(), user.ID, status)
	case user.Role == model.RoleDoctor:
		connections, err = h.connService.ListForDoctor(r.Context(), user.ID, status)
	default:
		connections, err = h.connService.ListForPatient(r.Context(), user.ID, status)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	result := make([]map[string]any, 0, len(connections))
	for i := range connections {
		result = append(result, formatConnection(&connections[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connections": result,
		"total":       len(result),
	})
}
