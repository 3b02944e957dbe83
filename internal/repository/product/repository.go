package product

import (
	"context"

	"storefront/internal/domain"
)

// ListFilter narrows catalog listings. Empty fields match everything.
type ListFilter struct {
	Category string
	Query    string
	Limit    int
	Offset   int
}

type Repository interface {
	List(ctx context.Context, f ListFilter) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}
