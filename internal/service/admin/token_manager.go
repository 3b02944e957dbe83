package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	tokenrepo "storefront/internal/repository/token"
)

var errTokenInactive = errors.New("token not active")

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type tokenMeta struct {
	TokenID   string
	AdminID   string
	ExpiresAt time.Time
}

type tokenManager struct {
	secret  []byte
	issuer  string
	revoked tokenrepo.Repository
	now     func() time.Time
}

func newTokenManager(secret string, revoked tokenrepo.Repository) *tokenManager {
	return &tokenManager{
		secret:  []byte(secret),
		issuer:  "storefront",
		revoked: revoked,
		now:     time.Now,
	}
}

func (m *tokenManager) Issue(adminID, email, role string, ttl time.Duration) (string, error) {
	now := m.now()
	c := claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   adminID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

func (m *tokenManager) Validate(ctx context.Context, raw string) (tokenMeta, bool) {
	var c claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	_, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil || c.Subject == "" || c.ID == "" {
		return tokenMeta{}, false
	}
	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(ctx, c.ID)
		if err != nil || revoked {
			return tokenMeta{}, false
		}
	}
	return tokenMeta{TokenID: c.ID, AdminID: c.Subject, ExpiresAt: c.ExpiresAt.Time}, true
}

func (m *tokenManager) Revoke(ctx context.Context, raw string) error {
	meta, ok := m.Validate(ctx, raw)
	if !ok {
		return errTokenInactive
	}
	if m.revoked == nil {
		return nil
	}
	err := m.revoked.Revoke(ctx, tokenrepo.Revocation{
		TokenID:   meta.TokenID,
		AdminID:   meta.AdminID,
		ExpiresAt: meta.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
