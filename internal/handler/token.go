package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careconnect/pairing-server/internal/config"
	"github.com/careconnect/pairing-server/internal/httputil"
	"github.com/careconnect/pairing-server/internal/service"
)

type TokenHandler struct {
	tokenService   *service.TokenService
	pairingService *service.PairingService
	validateLimit  func(http.Handler) http.Handler
}

func NewTokenHandler(
	tokenService *service.TokenService,
	pairingService *service.PairingService,
	validateLimit func(http.Handler) http.Handler,
) *TokenHandler {
	return &TokenHandler{
		tokenService:   tokenService,
		pairingService: pairingService,
		validateLimit:  validateLimit,
	}
}

func (h *TokenHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Issue)
	r.Get("/", h.List)
	r.Group(func(r chi.Router) {
		if h.validateLimit != nil {
			r.Use(h.validateLimit)
		}
		r.Get("/{token}/validate", h.Validate)
	})
	r.Post("/{token}/consume", h.Consume)
	r.Delete("/{token}", h.Delete)

	return r
}

type issueTokenRequest struct {
	IssuerID    string `json:"issuer_id"`
	ExpiryHours *int   `json:"expiry_hours"`
	MaxUses     *int   `json:"max_uses"`
}

type consumeTokenRequest struct {
	ConsumerID string `json:"consumer_id"`
}

// POST /api/tokens
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req issueTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := requireSelf(user, req.IssuerID, "issuer_id"); err != nil {
		writeError(w, err)
		return
	}

	expiryHours := config.DefaultTokenExpiryHours
	if req.ExpiryHours != nil {
		expiryHours = *req.ExpiryHours
	}
	maxUses := config.DefaultTokenMaxUses
	if req.MaxUses != nil {
		maxUses = *req.MaxUses
	}

	pt, err := h.tokenService.Issue(r.Context(), user.ID, expiryHours, maxUses)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, formatToken(pt, h.tokenService.QRURL(pt.Token), h.tokenService.Now()))
}

// GET /api/tokens/{token}/validate
//
// An unusable token is a normal answer, not an HTTP error: the body carries
// valid=false with the reason code.
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	result, err := h.pairingService.ValidateQRToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	if !result.Valid {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":   false,
			"code":    result.Reason,
			"message": result.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"doctor": result.Doctor,
	})
}

// POST /api/tokens/{token}/consume
func (h *TokenHandler) Consume(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	var req consumeTokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := requireSelf(user, req.ConsumerID, "consumer_id"); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.pairingService.ScanQRCode(r.Context(), user.ID, chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"connection": formatConnection(c)})
}

// DELETE /api/tokens/{token}
func (h *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}

	if err := h.tokenService.Delete(r.Context(), chi.URLParam(r, "token"), user.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/tokens?issuer_id=
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	if err := requireSelf(user, r.URL.Query().Get("issuer_id"), "issuer_id"); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.tokenService.ListByIssuer(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := h.tokenService.Now()
	result := make([]map[string]any, 0, len(tokens))
	for i := range tokens {
		pt := &tokens[i]
		result = append(result, formatToken(pt, h.tokenService.QRURL(pt.Token), now))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": result,
		"total":  len(result),
	})
}
