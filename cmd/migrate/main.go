package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logger"
	"storefront/internal/migrate"
)

func main() {
	var rollback int
	flag.IntVar(&rollback, "rollback", 0, "Revert this many migrations instead of applying")
	flag.Parse()

	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("migrate")

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	if rollback > 0 {
		version, err := migrate.Rollback(ctx, pool, rollback)
		if err != nil {
			log.Fatal("rollback migrations", zap.Int("steps", rollback), zap.Error(err))
		}
		log.Info("migrations rolled back", zap.Uint("version", version))
		return
	}

	version, err := migrate.Apply(ctx, pool)
	if err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}
	log.Info("migrations applied", zap.Uint("version", version))
}
