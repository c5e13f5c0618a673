package model

import (
	"time"

	"github.com/lib/pq"
)

// PairingToken is a QR credential a doctor hands out so a patient can
// self-initiate a connection. Validity is always derived from the counters
// and timestamps, never stored.
type PairingToken struct {
	Token     string         `db:"token" json:"token"`
	IssuerID  string         `db:"issuer_id" json:"issuerId"`
	MaxUses   int            `db:"max_uses" json:"maxUses"`
	UseCount  int            `db:"use_count" json:"useCount"`
	UsedBy    pq.StringArray `db:"used_by" json:"usedBy"`
	ExpiresAt time.Time      `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

type CreatePairingTokenParams struct {
	Token     string
	IssuerID  string
	MaxUses   int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether now is at or past the expiry instant.
func (t *PairingToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsExhausted reports whether every use has been consumed.
func (t *PairingToken) IsExhausted() bool {
	return t.UseCount >= t.MaxUses
}

// IsValid reports whether the token can still be consumed at now.
func (t *PairingToken) IsValid(now time.Time) bool {
	return !t.IsExhausted() && !t.IsExpired(now)
}

func (t *PairingToken) RemainingUses() int {
	if t.IsExhausted() {
		return 0
	}
	return t.MaxUses - t.UseCount
}
