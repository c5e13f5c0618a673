package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careconnect/pairing-server/internal/audit"
	"github.com/careconnect/pairing-server/internal/config"
	apperrors "github.com/careconnect/pairing-server/internal/errors"
	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
	"github.com/careconnect/pairing-server/internal/util"
)

// TokenService is the token store: it issues, consumes and deletes QR
// pairing tokens.
type TokenService struct {
	tokens    repository.PairingTokenRepository
	users     repository.UserRepository
	qrBaseURL string
	now       Clock
}

func NewTokenService(
	tokens repository.PairingTokenRepository,
	users repository.UserRepository,
	qrBaseURL string,
	clock Clock,
) *TokenService {
	if clock == nil {
		clock = time.Now
	}
	return &TokenService{
		tokens:    tokens,
		users:     users,
		qrBaseURL: qrBaseURL,
		now:       clock,
	}
}

// QRURL is the link encoded into the QR image for token.
func (s *TokenService) QRURL(token string) string {
	return s.qrBaseURL + token
}

func (s *TokenService) Now() time.Time {
	return s.now()
}

func (s *TokenService) Issue(ctx context.Context, issuerID string, expiryHours, maxUses int) (*model.PairingToken, error) {
	if expiryHours <= 0 {
		return nil, apperrors.InvalidParameter("expiry_hours", "must be positive")
	}
	if expiryHours > config.MaxTokenExpiryHours {
		return nil, apperrors.InvalidParameter("expiry_hours", fmt.Sprintf("must be at most %d", config.MaxTokenExpiryHours))
	}
	if maxUses <= 0 {
		return nil, apperrors.InvalidParameter("max_uses", "must be positive")
	}

	issuer, err := s.users.FindByID(ctx, issuerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if issuer == nil {
		return nil, apperrors.NotFound("User")
	}
	if issuer.Role != model.RoleDoctor {
		return nil, apperrors.Forbidden("Only doctors can issue pairing tokens")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to generate token").WithCause(err)
	}

	now := s.now()
	pt, err := s.tokens.Create(ctx, model.CreatePairingTokenParams{
		Token:     token,
		IssuerID:  issuerID,
		MaxUses:   maxUses,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(expiryHours) * time.Hour),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("tokenPrefix", util.MaskToken(token)).
		Str("issuerId", issuerID).
		Int("maxUses", maxUses).
		Time("expiresAt", pt.ExpiresAt).
		Msg("pairing token issued")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventTokenIssue,
		UserID:     issuerID,
		ResourceID: util.MaskToken(token),
		Details:    map[string]interface{}{"maxUses": maxUses, "expiryHours": expiryHours},
	})

	return pt, nil
}

func (s *TokenService) Get(ctx context.Context, token string) (*model.PairingToken, error) {
	pt, err := s.tokens.FindByToken(ctx, token)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if pt == nil {
		return nil, apperrors.NotFound("Pairing token")
	}
	return pt, nil
}

// Consume redeems one use of token for consumerID.
func (s *TokenService) Consume(ctx context.Context, token, consumerID string) (*model.PairingToken, error) {
	pt, err := s.tokens.Consume(ctx, token, consumerID, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("Pairing token")
	case errors.Is(err, repository.ErrTokenExpired):
		return nil, apperrors.TokenExpired()
	case errors.Is(err, repository.ErrTokenExhausted):
		return nil, apperrors.TokenExhausted()
	case err != nil:
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("tokenPrefix", util.MaskToken(token)).
		Str("consumerId", consumerID).
		Int("useCount", pt.UseCount).
		Int("maxUses", pt.MaxUses).
		Msg("pairing token consumed")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventTokenConsume,
		UserID:     consumerID,
		ResourceID: util.MaskToken(token),
		Details:    map[string]interface{}{"useCount": pt.UseCount},
	})

	return pt, nil
}

// Delete removes an expired token on behalf of its issuer.
func (s *TokenService) Delete(ctx context.Context, token, requesterID string) error {
	pt, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	if pt.IssuerID != requesterID {
		return apperrors.Forbidden("Only the issuing doctor can delete this token")
	}
	now := s.now()
	if !pt.IsExpired(now) {
		return apperrors.TokenStillActive()
	}

	deleted, err := s.tokens.DeleteIfExpired(ctx, token, requesterID, now)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		// Removed concurrently by another delete or the reaper.
		return apperrors.NotFound("Pairing token")
	}

	log.Info().
		Str("tokenPrefix", util.MaskToken(token)).
		Str("issuerId", requesterID).
		Msg("pairing token deleted")

	audit.Log(ctx, audit.Event{
		Type:       audit.EventTokenDelete,
		UserID:     requesterID,
		ResourceID: util.MaskToken(token),
	})

	return nil
}

func (s *TokenService) ListByIssuer(ctx context.Context, issuerID string) ([]model.PairingToken, error) {
	tokens, err := s.tokens.ListByIssuer(ctx, issuerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return tokens, nil
}

// ReapExpired deletes tokens whose expiry is older than retention.
func (s *TokenService) ReapExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.tokens.DeleteExpiredBefore(ctx, s.now().Add(-retention))
}
