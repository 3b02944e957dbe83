package token

import (
	"context"
	"time"
)

// Revocation marks a token id as unusable until it would have expired anyway.
type Revocation struct {
	TokenID   string
	AdminID   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Repository tracks revoked bearer tokens.
type Repository interface {
	Revoke(ctx context.Context, r Revocation) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
