package product

import (
	"context"
	"strings"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

const maxPageSize = 100

type Service struct {
	repo productrepo.Repository
}

func New(repo productrepo.Repository) *Service {
	return &Service{repo: repo}
}

// List returns catalog products filtered by category and a free-text query.
func (s *Service) List(ctx context.Context, category, query string, limit, offset int) ([]domain.Product, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, productrepo.ListFilter{
		Category: strings.TrimSpace(category),
		Query:    strings.TrimSpace(query),
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}
