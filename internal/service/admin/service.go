package admin

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	"storefront/internal/logger"
	adminrepo "storefront/internal/repository/admin"
	tokenrepo "storefront/internal/repository/token"
)

var (
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates the provided token could not be validated.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidInput rejects malformed login payloads.
	ErrInvalidInput = errors.New("email and password required")
)

// Service handles admin login, profile lookups and logout.
type Service struct {
	repo      adminrepo.Repository
	tokens    *tokenManager
	accessTTL time.Duration
	logger    *zap.Logger
}

// New creates a Service. Tokens are HS256 JWTs signed with secret.
func New(repo adminrepo.Repository, revoked tokenrepo.Repository, secret string, ttl time.Duration, l *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		tokens:    newTokenManager(secret, revoked),
		accessTTL: ttl,
		logger:    logger.OrNop(l).Named("admin_service"),
	}
}

// Login validates credentials and returns the admin plus an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.Admin, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || password == "" {
		return nil, "", ErrInvalidInput
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("login unknown email", zap.String("email", email))
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login bad password", zap.String("admin_id", a.ID))
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(a.ID, a.Email, a.Role, s.accessTTL)
	if err != nil {
		return nil, "", err
	}
	return a, token, nil
}

// LookupByToken returns the admin bound to a valid, unrevoked token.
func (s *Service) LookupByToken(ctx context.Context, token string) (*domain.Admin, error) {
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok {
		return nil, ErrInvalidToken
	}
	a, err := s.repo.GetByID(ctx, meta.AdminID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return a, nil
}

// Logout revokes token server side.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.tokens.Revoke(ctx, token)
	if errors.Is(err, errTokenInactive) {
		return ErrInvalidToken
	}
	return err
}

// HashPassword is used by seeding and admin provisioning.
func HashPassword(password string) (string, error) {
	if len(strings.TrimSpace(password)) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// AccessTTLSeconds exposes the access token lifetime in seconds.
func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}
