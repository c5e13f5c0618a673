package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/careconnect/pairing-server/internal/audit"
	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/httputil"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	loginLimit  func(http.Handler) http.Handler
	requireAuth func(http.Handler) http.Handler
}

// NewAuthHandler builds the identity routes. loginLimit guards signup and
// login; requireAuth guards /me.
func NewAuthHandler(
	authService *service.AuthService,
	loginLimit func(http.Handler) http.Handler,
	requireAuth func(http.Handler) http.Handler,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		loginLimit:  loginLimit,
		requireAuth: requireAuth,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.loginLimit != nil {
			r.Use(h.loginLimit)
		}
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
	})

	r.Group(func(r chi.Router) {
		if h.requireAuth != nil {
			r.Use(h.requireAuth)
		}
		r.Get("/me", h.Me)
	})

	return r
}

type signupRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	DisplayName    string `json:"display_name"`
	Specialization string `json:"specialization"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.authService.Signup(r.Context(), service.SignupParams{
		Email:          req.Email,
		Password:       req.Password,
		Role:           model.Role(req.Role),
		DisplayName:    req.DisplayName,
		Specialization: req.Specialization,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, formatAuthResult(result))
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, apperrors.MissingRequired("email and password"))
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventLoginFailure})
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventLoginSuccess,
		UserID: result.User.ID,
	})

	writeJSON(w, http.StatusOK, formatAuthResult(result))
}

// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": formatUser(user)})
}

func formatAuthResult(result *service.AuthResult) map[string]any {
	return map[string]any{
		"user":      formatUser(result.User),
		"token":     result.Token,
		"expiresAt": formatTime(&result.ExpiresAt),
	}
}
