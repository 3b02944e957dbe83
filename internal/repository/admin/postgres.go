package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logger"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, l *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logger.OrNop(l).Named("admin_repo")}
}

func (r *postgresRepo) Create(ctx context.Context, a domain.Admin) (*domain.Admin, error) {
	const q = `
INSERT INTO admins (email, password_hash, name, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET
    password_hash = EXCLUDED.password_hash,
    name = EXCLUDED.name,
    role = EXCLUDED.role
RETURNING id::text, email, password_hash, name, role, created_at
`
	role := a.Role
	if role == "" {
		role = "admin"
	}
	return r.scanAdmin(r.pool.QueryRow(ctx, q, strings.ToLower(a.Email), a.PasswordHash, a.Name, role))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	const q = `
SELECT id::text, email, password_hash, name, role, created_at
FROM admins
WHERE lower(email) = lower($1)
LIMIT 1
`
	return r.scanAdmin(r.pool.QueryRow(ctx, q, email))
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	const q = `
SELECT id::text, email, password_hash, name, role, created_at
FROM admins
WHERE id::text = $1
LIMIT 1
`
	return r.scanAdmin(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var a domain.Admin
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.Role, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("scan failed", zap.Error(err))
		return nil, err
	}
	return &a, nil
}
