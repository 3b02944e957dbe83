package admin

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists and fetches dashboard admins.
type Repository interface {
	Create(ctx context.Context, a domain.Admin) (*domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (*domain.Admin, error)
	GetByID(ctx context.Context, id string) (*domain.Admin, error)
}
