package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/careconnect/pairing-server/internal/model"
)

type PairingTokenRepository interface {
	Create(ctx context.Context, params model.CreatePairingTokenParams) (*model.PairingToken, error)
	FindByToken(ctx context.Context, token string) (*model.PairingToken, error)
	// Consume atomically records one use by consumerID. It returns
	// ErrNotFound, ErrTokenExpired or ErrTokenExhausted when no use was
	// recorded; expiry takes precedence over exhaustion.
	Consume(ctx context.Context, token, consumerID string, now time.Time) (*model.PairingToken, error)
	// DeleteIfExpired removes the token only when issuerID issued it and it
	// has expired at now. It reports whether a row was deleted.
	DeleteIfExpired(ctx context.Context, token, issuerID string, now time.Time) (bool, error)
	ListByIssuer(ctx context.Context, issuerID string) ([]model.PairingToken, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type pairingTokenRepo struct {
	db *sqlx.DB
}

func NewPairingTokenRepository(db *sqlx.DB) PairingTokenRepository {
	return &pairingTokenRepo{db: db}
}

func (r *pairingTokenRepo) Create(ctx context.Context, params model.CreatePairingTokenParams) (*model.PairingToken, error) {
	var pt model.PairingToken
	err := r.db.GetContext(ctx, &pt, `
		INSERT INTO pairing_tokens (token, issuer_id, max_uses, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.Token, params.IssuerID, params.MaxUses, params.ExpiresAt, params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (r *pairingTokenRepo) FindByToken(ctx context.Context, token string) (*model.PairingToken, error) {
	var pt model.PairingToken
	err := r.db.GetContext(ctx, &pt, `SELECT * FROM pairing_tokens WHERE token = $1`, token)
	return HandleNotFound(&pt, err)
}

func (r *pairingTokenRepo) Consume(ctx context.Context, token, consumerID string, now time.Time) (*model.PairingToken, error) {
	var pt model.PairingToken
	err := r.db.GetContext(ctx, &pt, `
		UPDATE pairing_tokens SET
			use_count = use_count + 1,
			used_by = array_append(used_by, $2)
		WHERE token = $1 AND use_count < max_uses AND expires_at > $3
		RETURNING *
	`, token, consumerID, now)
	consumed, err := HandleNotFound(&pt, err)
	if err != nil {
		return nil, err
	}
	if consumed != nil {
		return consumed, nil
	}

	// Nothing updated: re-read to report why.
	current, err := r.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return nil, ConsumeFailure(current, now)
}

// ConsumeFailure explains why a consume matched no row. pt is the current
// row, or nil when the token does not exist.
func ConsumeFailure(pt *model.PairingToken, now time.Time) error {
	switch {
	case pt == nil:
		return ErrNotFound
	case pt.IsExpired(now):
		return ErrTokenExpired
	default:
		return ErrTokenExhausted
	}
}

func (r *pairingTokenRepo) DeleteIfExpired(ctx context.Context, token, issuerID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairing_tokens
		WHERE token = $1 AND issuer_id = $2 AND expires_at <= $3
	`, token, issuerID, now)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *pairingTokenRepo) ListByIssuer(ctx context.Context, issuerID string) ([]model.PairingToken, error) {
	tokens := []model.PairingToken{}
	err := r.db.SelectContext(ctx, &tokens, `
		SELECT * FROM pairing_tokens
		WHERE issuer_id = $1
		ORDER BY created_at DESC
	`, issuerID)
	return tokens, err
}

func (r *pairingTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM pairing_tokens
		WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
