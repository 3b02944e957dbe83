package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/logger"
	adminsvc "storefront/internal/service/admin"
)

type adminWriter interface {
	Create(ctx context.Context, a domain.Admin) (*domain.Admin, error)
}

type productWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Options names the demo admin account.
type Options struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func (o Options) withDefaults() Options {
	if o.AdminEmail == "" {
		o.AdminEmail = "admin@example.com"
	}
	if o.AdminPassword == "" {
		o.AdminPassword = "storefront-demo"
	}
	if o.AdminName == "" {
		o.AdminName = "Demo Admin"
	}
	return o
}

var demoProducts = []domain.Product{
	{
		Key:         "demo-shirt",
		SKU:         "SKU-DEMO-TSHIRT",
		Name:        "Demo T-Shirt",
		Brand:       "Storefront",
		Description: "Soft cotton tee for demo purposes",
		Category:    "apparel",
		ImageURL:    "/static/demo-shirt.jpg",
		PriceCents:  1999,
		Currency:    "USD",
	},
	{
		Key:         "demo-mug",
		SKU:         "SKU-DEMO-MUG",
		Name:        "Demo Mug",
		Brand:       "Storefront",
		Description: "Ceramic mug with demo logo",
		Category:    "kitchen",
		ImageURL:    "/static/demo-mug.jpg",
		PriceCents:  1299,
		Currency:    "USD",
	},
	{
		Key:         "demo-runner",
		SKU:         "SKU-DEMO-RUNNER",
		Name:        "Demo Trail Runner",
		Brand:       "Acme",
		Description: "Lightweight trail running shoe",
		Category:    "shoes",
		ImageURL:    "/static/demo-runner.jpg",
		PriceCents:  8999,
		Currency:    "USD",
	},
}

// Apply inserts the demo admin and catalog. It is idempotent: admins are
// upserted by email and products by key.
func Apply(ctx context.Context, admins adminWriter, products productWriter, opts Options, l *zap.Logger) error {
	l = logger.OrNop(l)
	opts = opts.withDefaults()

	hash, err := adminsvc.HashPassword(opts.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	a, err := admins.Create(ctx, domain.Admin{
		Email:        opts.AdminEmail,
		PasswordHash: hash,
		Name:         opts.AdminName,
		Role:         "admin",
	})
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	l.Info("seeded admin", zap.String("email", a.Email), zap.String("id", a.ID))

	for _, p := range demoProducts {
		if _, err := products.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Key, err)
		}
	}
	l.Info("seeded products", zap.Int("count", len(demoProducts)))
	return nil
}
