package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"
	adminrepo "storefront/internal/repository/admin"
	productrepo "storefront/internal/repository/product"
	"storefront/internal/seed"
)

func main() {
	var opts seed.Options
	flag.StringVar(&opts.AdminEmail, "admin-email", os.Getenv("SEED_ADMIN_EMAIL"), "Email of the demo admin")
	flag.StringVar(&opts.AdminPassword, "admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "Password of the demo admin")
	flag.StringVar(&opts.AdminName, "admin-name", "", "Display name of the demo admin")
	flag.Parse()

	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("seed")

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	admins := adminrepo.NewPostgres(pool, log)
	products := productrepo.NewPostgres(pool, log)
	if err := seed.Apply(ctx, admins, products, opts, log); err != nil {
		log.Fatal("seed apply", zap.Error(err))
	}

	log.Info("seed applied")
}
