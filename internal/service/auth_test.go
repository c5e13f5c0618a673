package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
)

func TestAuthService_SignupAndLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.auth.Signup(ctx, SignupParams{
		Email:          "  Dr.Kim@Clinic.example.com ",
		Password:       "s3cure-password",
		Role:           model.RoleDoctor,
		DisplayName:    "Dr. Kim",
		Specialization: "Cardiology",
	})
	require.NoError(t, err)
	assert.Equal(t, "dr.kim@clinic.example.com", res.User.Email)
	assert.NotEqual(t, "s3cure-password", res.User.PasswordHash)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, env.clock.Now().Add(24*time.Hour), res.ExpiresAt)

	t.Run("token authenticates", func(t *testing.T) {
		u, err := env.auth.Authenticate(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, u.ID)
		assert.Equal(t, model.RoleDoctor, u.Role)
	})

	t.Run("login with normalized email", func(t *testing.T) {
		login, err := env.auth.Login(ctx, "DR.KIM@clinic.example.com", "s3cure-password")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, login.User.ID)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, err1 := env.auth.Login(ctx, "dr.kim@clinic.example.com", "wrong-password")
		_, err2 := env.auth.Login(ctx, "nobody@clinic.example.com", "s3cure-password")
		requireCode(t, err1, apperrors.ErrCodeUnauthorized)
		requireCode(t, err2, apperrors.ErrCodeUnauthorized)
		assert.Equal(t, err1.Error(), err2.Error())
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.auth.Signup(ctx, SignupParams{
			Email: "dr.kim@clinic.example.com", Password: "another-pass",
			Role: model.RolePatient, DisplayName: "Kim",
		})
		requireCode(t, err, apperrors.ErrCodeAlreadyExists)
	})

	t.Run("session expires", func(t *testing.T) {
		env.clock.Advance(25 * time.Hour)
		_, err := env.auth.Authenticate(ctx, res.Token)
		requireCode(t, err, apperrors.ErrCodeUnauthorized)
	})
}

func TestAuthService_SignupValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name   string
		params SignupParams
		code   apperrors.ErrorCode
	}{
		{"missing email", SignupParams{Password: "password1", Role: model.RolePatient, DisplayName: "A"}, apperrors.ErrCodeMissingRequired},
		{"bad email", SignupParams{Email: "nope", Password: "password1", Role: model.RolePatient, DisplayName: "A"}, apperrors.ErrCodeInvalidParameter},
		{"short password", SignupParams{Email: "a@example.com", Password: "short", Role: model.RolePatient, DisplayName: "A"}, apperrors.ErrCodeInvalidParameter},
		{"bad role", SignupParams{Email: "a@example.com", Password: "password1", Role: "admin", DisplayName: "A"}, apperrors.ErrCodeInvalidParameter},
		{"missing name", SignupParams{Email: "a@example.com", Password: "password1", Role: model.RolePatient}, apperrors.ErrCodeMissingRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Signup(ctx, tc.params)
			requireCode(t, err, tc.code)
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	patient := env.patient(t, "lee")

	sign := func(secret string, method jwt.SigningMethod, claims SessionClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	now := env.clock.Now()
	claims := SessionClaims{
		Role: model.RoleDoctor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   patient.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	t.Run("role comes from the store, not the token", func(t *testing.T) {
		u, err := env.auth.Authenticate(ctx, sign("test-secret-test-secret-test-secret", jwt.SigningMethodHS256, claims))
		require.NoError(t, err)
		assert.Equal(t, model.RolePatient, u.Role)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, sign("another-secret", jwt.SigningMethodHS256, claims))
		requireCode(t, err, apperrors.ErrCodeUnauthorized)
	})

	t.Run("other HMAC algorithm rejected", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, sign("test-secret-test-secret-test-secret", jwt.SigningMethodHS512, claims))
		requireCode(t, err, apperrors.ErrCodeUnauthorized)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost := claims
		ghost.Subject = "00000000-0000-0000-0000-000000000000"
		_, err := env.auth.Authenticate(ctx, sign("test-secret-test-secret-test-secret", jwt.SigningMethodHS256, ghost))
		requireCode(t, err, apperrors.ErrCodeUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := env.auth.Authenticate(ctx, "not.a.jwt")
		requireCode(t, err, apperrors.ErrCodeUnauthorized)
	})
}
