package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
)

func TestAuthHandler(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/auth/signup", nil, map[string]any{
		"email":          "Dr.Kim@Clinic.Example.com",
		"password":       "correct-horse",
		"role":           "doctor",
		"display_name":   "Dr. Kim",
		"specialization": "Cardiology",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signup := decode(t, rec)
	user := signup["user"].(map[string]any)
	assert.Equal(t, "dr.kim@clinic.example.com", user["email"])
	assert.Equal(t, "doctor", user["role"])
	assert.NotContains(t, user, "passwordHash")
	require.NotEmpty(t, signup["token"])

	t.Run("duplicate signup", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/auth/signup", nil, map[string]any{
			"email": "dr.kim@clinic.example.com", "password": "another-one", "role": "patient", "display_name": "Kim",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(apperrors.ErrCodeAlreadyExists), decode(t, rec)["code"])
	})

	t.Run("login and me", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", nil, map[string]any{
			"email": "dr.kim@clinic.example.com", "password": "correct-horse",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		session := testUser{token: decode(t, rec)["token"].(string)}

		rec = srv.do(t, http.MethodGet, "/api/auth/me", &session, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode(t, rec)["user"].(map[string]any)
		assert.Equal(t, user["id"], me["id"])
		assert.Equal(t, "Cardiology", me["specialization"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", nil, map[string]any{
			"email": "dr.kim@clinic.example.com", "password": "wrong-horse",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing credentials", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", nil, map[string]any{"email": "dr.kim@clinic.example.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", nil, "not an object")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(apperrors.ErrCodeInvalidParameter), decode(t, rec)["code"])
	})

	t.Run("expired session", func(t *testing.T) {
		session := testUser{token: signup["token"].(string)}
		srv.clock.Advance(25 * time.Hour)

		rec := srv.do(t, http.MethodGet, "/api/auth/me", &session, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthHandler_LoginRateLimit(t *testing.T) {
	srv := newTestServer(t)

	var last int
	for i := 0; i < 11; i++ {
		rec := srv.do(t, http.MethodPost, "/api/auth/login", nil, map[string]any{
			"email": "nobody@example.com", "password": "whatever-pass",
		})
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
