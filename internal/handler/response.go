package handler

import (
	"net/http"
	"time"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/httputil"
	"github.com/careconnect/pairing-server/internal/middleware"
	"github.com/careconnect/pairing-server/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// currentUser returns the authenticated user or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request) *model.User {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Not authenticated"))
	}
	return user
}

// requireSelf rejects a client-supplied id that names someone other than
// the session user. An empty id defaults to the session user.
func requireSelf(user *model.User, id, field string) error {
	if id != "" && id != user.ID {
		return apperrors.Forbidden(field + " must match the authenticated user")
	}
	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func formatUser(u *model.User) map[string]any {
	return map[string]any{
		"id":             u.ID,
		"email":          u.Email,
		"role":           u.Role,
		"displayName":    u.DisplayName,
		"specialization": u.Specialization,
		"createdAt":      formatTime(&u.CreatedAt),
	}
}

func formatConnection(c *model.Connection) map[string]any {
	return map[string]any{
		"id":             c.ID,
		"doctorId":       c.DoctorID,
		"patientId":      c.PatientID,
		"connectionType": c.ConnectionType,
		"initiatedBy":    c.InitiatedBy,
		"status":         c.Status(),
		"initiatorNote":  c.InitiatorNote,
		"responderNote":  c.ResponderNote,
		"createdAt":      formatTime(&c.CreatedAt),
		"respondedAt":    formatTime(c.RespondedAt),
		"removedAt":      formatTime(c.RemovedAt),
	}
}

func formatToken(pt *model.PairingToken, qrURL string, now time.Time) map[string]any {
	usedBy := []string(pt.UsedBy)
	if usedBy == nil {
		usedBy = []string{}
	}
	return map[string]any{
		"token":         pt.Token,
		"issuerId":      pt.IssuerID,
		"qrUrl":         qrURL,
		"maxUses":       pt.MaxUses,
		"useCount":      pt.UseCount,
		"remainingUses": pt.RemainingUses(),
		"usedBy":        usedBy,
		"isValid":       pt.IsValid(now),
		"isExpired":     pt.IsExpired(now),
		"expiresAt":     formatTime(&pt.ExpiresAt),
		"createdAt":     formatTime(&pt.CreatedAt),
	}
}
