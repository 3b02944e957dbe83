package httpserver

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/domain"
	"storefront/internal/metrics"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/session"
	"storefront/internal/upload"
)

type productService interface {
	List(ctx context.Context, category, query string, limit, offset int) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type cartService interface {
	Get(ctx context.Context, visitorID string) (cart.Snapshot, error)
	Update(ctx context.Context, visitorID string, in cartsvc.UpdateInput) (cart.Snapshot, error)
	Clear(ctx context.Context, visitorID string) (cart.Snapshot, error)
}

type adminService interface {
	Login(ctx context.Context, email, password string) (*domain.Admin, string, error)
	LookupByToken(ctx context.Context, token string) (*domain.Admin, error)
	Logout(ctx context.Context, token string) error
	AccessTTLSeconds() int
}

type receiptStore interface {
	Save(filename string, src io.Reader) (*upload.Stored, error)
	MaxBytes() int64
}

// Deps carries the services the router exposes.
type Deps struct {
	ProductSvc productService
	CartSvc    cartService
	AdminSvc   adminService
	Receipts   receiptStore
	Metrics    *metrics.Metrics

	// ReadyChecks are probed by /readyz after the database.
	ReadyChecks map[string]Pinger

	UploadDir    string
	CORSOrigins  []string
	CookieSecure bool
}

// buildRouter wires routes for the API and the storefront pages.
func buildRouter(logger *zap.Logger, db Pinger, deps Deps) (*gin.Engine, error) {
	if deps.ProductSvc == nil || deps.CartSvc == nil || deps.AdminSvc == nil {
		return nil, errors.New("product, cart and admin services are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestID(), accessLog(logger), observe(deps.Metrics), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
			ExposeHeaders:    []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	router.SetHTMLTemplate(pages)

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db, deps.ReadyChecks))
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	h := &handlers{deps: deps, logger: logger, policy: session.DefaultCookiePolicy(deps.CookieSecure)}

	api := router.Group("/api")
	api.GET("/products", h.listProducts)
	api.GET("/products/:id", h.getProduct)

	api.GET("/cart", h.visitor, h.getCart)
	api.POST("/cart", h.visitor, h.updateCart)
	api.DELETE("/cart", h.visitor, h.clearCart)

	api.POST("/admin/login", h.adminLogin)
	api.GET("/admin/profile", h.adminProfile)
	api.POST("/admin/logout", h.adminLogout)

	if deps.Receipts != nil {
		api.POST("/uploads/receipt", h.uploadReceipt)
	}
	if deps.UploadDir != "" {
		router.Static("/uploads", deps.UploadDir)
	}

	web := router.Group("/", session.Middleware(session.DefaultRules()))
	web.GET("/login", h.loginPage)
	web.POST("/login", h.loginSubmit)
	web.POST("/logout", h.logoutSubmit)
	web.GET("/dashboard", h.dashboard)

	return router, nil
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
	policy session.CookiePolicy
}
