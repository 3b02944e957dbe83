package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	adminrepo "storefront/internal/repository/admin"
	productrepo "storefront/internal/repository/product"
	tokenrepo "storefront/internal/repository/token"
	adminsvc "storefront/internal/service/admin"
	cartsvc "storefront/internal/service/cart"
	productsvc "storefront/internal/service/product"
	"storefront/internal/storage"
	"storefront/internal/upload"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("api")

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, log)
	if err != nil {
		log.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	readyChecks := map[string]httpserver.Pinger{}
	var cartKV storage.KV
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		kv := storage.NewRedis(client, "storefront:")
		if err := kv.Ping(ctx); err != nil {
			log.Fatal("connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		readyChecks["redis"] = kv
		cartKV = kv
	} else {
		log.Warn("REDIS_ADDR not set, carts are kept in memory")
		cartKV = storage.NewMemory()
	}

	m := metrics.New()

	productRepo := productrepo.NewPostgres(dbpool, log)
	productService := productsvc.New(productRepo)
	cartService := cartsvc.New(cartKV, productRepo, log, cartsvc.WithListener(m.CartListener()))
	tokenRepo := tokenrepo.NewPostgres(dbpool)
	adminService := adminsvc.New(adminrepo.NewPostgres(dbpool, log), tokenRepo, cfg.JWTSecret, cfg.JWTTTL, log)
	receipts := upload.NewReceipts(cfg.UploadDir, "/uploads", cfg.UploadMaxBytes, log)

	srv, err := httpserver.New(cfg.HTTPAddr, log, dbpool, httpserver.Deps{
		ProductSvc:   productService,
		CartSvc:      cartService,
		AdminSvc:     adminService,
		Receipts:     receipts,
		Metrics:      m,
		ReadyChecks:  readyChecks,
		UploadDir:    cfg.UploadDir,
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.CookieSecure,
	})
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go purgeRevokedTokens(bgCtx, tokenRepo, log)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("server stopped")
	}
}

// purgeRevokedTokens drops revocations whose tokens have expired anyway.
func purgeRevokedTokens(ctx context.Context, repo tokenrepo.Repository, log *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := repo.PurgeExpired(ctx, now)
			if err != nil {
				log.Warn("purge revoked tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged revoked tokens", zap.Int64("count", n))
			}
		}
	}
}
