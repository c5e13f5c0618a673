package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/careconnect/pairing-server/internal/audit"
	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
	"github.com/careconnect/pairing-server/internal/util"
)

const (
	minPasswordLength = 8
	sessionIssuer     = "careconnect"
)

type SessionClaims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

type SignupParams struct {
	Email          string
	Password       string
	Role           model.Role
	DisplayName    string
	Specialization string
}

// AuthResult is a user with a freshly issued session token.
type AuthResult struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type AuthService struct {
	users      repository.UserRepository
	secret     []byte
	sessionTTL time.Duration
	now        Clock
}

func NewAuthService(users repository.UserRepository, jwtSecret string, sessionTTL time.Duration, clock Clock) *AuthService {
	if clock == nil {
		clock = time.Now
	}
	return &AuthService{
		users:      users,
		secret:     []byte(jwtSecret),
		sessionTTL: sessionTTL,
		now:        clock,
	}
}

func (s *AuthService) Signup(ctx context.Context, params SignupParams) (*AuthResult, error) {
	email := util.NormalizeEmail(params.Email)
	if email == "" {
		return nil, apperrors.MissingRequired("email")
	}
	if !util.IsValidEmail(email) {
		return nil, apperrors.InvalidParameter("email", "must be a valid address")
	}
	if len(params.Password) < minPasswordLength {
		return nil, apperrors.InvalidParameter("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if !params.Role.Valid() {
		return nil, apperrors.InvalidParameter("role", "must be doctor or patient")
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return nil, apperrors.MissingRequired("display_name")
	}
	specialization := strings.TrimSpace(params.Specialization)
	if params.Role == model.RolePatient {
		specialization = ""
	}

	hash, err := util.HashPassword(params.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password").WithCause(err)
	}

	user, err := s.users.Create(ctx, model.CreateUserParams{
		Email:          email,
		PasswordHash:   hash,
		Role:           params.Role,
		DisplayName:    displayName,
		Specialization: specialization,
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil, apperrors.AlreadyExists("Account")
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("userId", user.ID).
		Str("role", string(user.Role)).
		Msg("user signed up")

	audit.Log(ctx, audit.Event{
		Type:    audit.EventSignup,
		UserID:  user.ID,
		Details: map[string]interface{}{"role": string(user.Role)},
	})

	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password produce the
// same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.Unauthorized("Invalid email or password")
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)

	claims := SessionClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, apperrors.Internal("Failed to sign session").WithCause(err)
	}

	return &AuthResult{User: user, Token: signed, ExpiresAt: expiresAt}, nil
}

// Authenticate validates a session token and reloads its user. The role in
// the returned user comes from the store, not from the token.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid or expired session").WithCause(err)
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("Session user no longer exists")
	}
	return user, nil
}
