package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logger"
)

const productColumns = `id::text, key, sku, name, brand, COALESCE(description, ''), category, image_url, price_cents, currency, created_at`

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, l *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger.OrNop(l).Named("product_repo")}
}

func (r *postgresRepo) List(ctx context.Context, f ListFilter) ([]domain.Product, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := `
SELECT ` + productColumns + `
FROM products
WHERE ($1 = '' OR category = $1)
  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR brand ILIKE '%' || $2 || '%')
ORDER BY created_at DESC, key ASC
LIMIT $3 OFFSET $4
`
	rows, err := r.pool.Query(ctx, q, f.Category, f.Query, limit, offset)
	if err != nil {
		r.logger.Error("list failed", zap.String("category", f.Category), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	result := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("list rows failed", zap.Error(err))
		return nil, err
	}
	r.logger.Debug("listed products", zap.String("category", f.Category), zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id::text = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			r.logger.Error("get failed", zap.String("id", id), zap.String("code", pgErr.Code), zap.Error(err))
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	const q = `
INSERT INTO products (key, sku, name, brand, description, category, image_url, price_cents, currency)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
ON CONFLICT (key) DO UPDATE SET
    sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    brand = EXCLUDED.brand,
    description = EXCLUDED.description,
    category = EXCLUDED.category,
    image_url = EXCLUDED.image_url,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency
RETURNING ` + productColumns
	p, err := scanProduct(r.pool.QueryRow(ctx, q,
		product.Key,
		product.SKU,
		product.Name,
		product.Brand,
		product.Description,
		product.Category,
		product.ImageURL,
		product.PriceCents,
		product.Currency,
	))
	if err != nil {
		r.logger.Error("upsert failed", zap.String("key", product.Key), zap.Error(err))
		return nil, fmt.Errorf("upsert product %s: %w", product.Key, err)
	}
	r.logger.Debug("upserted product", zap.String("key", p.Key), zap.String("id", p.ID))
	return p, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Key, &p.SKU, &p.Name, &p.Brand, &p.Description, &p.Category, &p.ImageURL, &p.PriceCents, &p.Currency, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
