package memory

import (
	"context"
	"sort"
	"time"

	"github.com/careconnect/pairing-server/internal/model"
	"github.com/careconnect/pairing-server/internal/repository"
)

type tokenRepo struct{ s *Store }

func (r *tokenRepo) Create(_ context.Context, params model.CreatePairingTokenParams) (*model.PairingToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pt := &model.PairingToken{
		Token:     params.Token,
		IssuerID:  params.IssuerID,
		MaxUses:   params.MaxUses,
		UsedBy:    []string{},
		ExpiresAt: params.ExpiresAt,
		CreatedAt: params.CreatedAt,
	}
	r.s.tokens[pt.Token] = pt
	return copyToken(pt), nil
}

func (r *tokenRepo) FindByToken(_ context.Context, token string) (*model.PairingToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pt, ok := r.s.tokens[token]
	if !ok {
		return nil, nil
	}
	return copyToken(pt), nil
}

func (r *tokenRepo) Consume(_ context.Context, token, consumerID string, now time.Time) (*model.PairingToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pt := r.s.tokens[token]
	if pt == nil || !pt.IsValid(now) {
		return nil, repository.ConsumeFailure(pt, now)
	}
	pt.UseCount++
	pt.UsedBy = append(pt.UsedBy, consumerID)
	return copyToken(pt), nil
}

func (r *tokenRepo) DeleteIfExpired(_ context.Context, token, issuerID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pt, ok := r.s.tokens[token]
	if !ok || pt.IssuerID != issuerID || !pt.IsExpired(now) {
		return false, nil
	}
	delete(r.s.tokens, token)
	return true, nil
}

func (r *tokenRepo) ListByIssuer(_ context.Context, issuerID string) ([]model.PairingToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tokens := []model.PairingToken{}
	for _, pt := range r.s.tokens {
		if pt.IssuerID == issuerID {
			tokens = append(tokens, *copyToken(pt))
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		if !tokens[i].CreatedAt.Equal(tokens[j].CreatedAt) {
			return tokens[i].CreatedAt.After(tokens[j].CreatedAt)
		}
		return tokens[i].Token < tokens[j].Token
	})
	return tokens, nil
}

func (r *tokenRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for token, pt := range r.s.tokens {
		if pt.ExpiresAt.Before(cutoff) {
			delete(r.s.tokens, token)
			n++
		}
	}
	return n, nil
}
