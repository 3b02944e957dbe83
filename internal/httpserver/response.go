package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/cart"
	"storefront/internal/domain"
	adminsvc "storefront/internal/service/admin"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/session"
	"storefront/internal/upload"
)

type errorBody struct {
	Error errorData `json:"error"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Error: errorData{Code: code, Message: message}})
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500 without leaking details.
func (h *handlers) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "resource not found")
	case errors.Is(err, adminsvc.ErrInvalidCredentials):
		writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "email or password is incorrect")
	case errors.Is(err, adminsvc.ErrInvalidToken), errors.Is(err, session.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing, invalid or expired token")
	case errors.Is(err, upload.ErrTooLarge):
		writeError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		writeError(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", "only jpeg, png, gif, webp or pdf files are accepted")
	case errors.Is(err, adminsvc.ErrInvalidInput),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, upload.ErrEmpty),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cartsvc.ErrActionsRequired),
		errors.Is(err, cartsvc.ErrUnsupportedAction),
		errors.Is(err, cartsvc.ErrProductRequired),
		errors.Is(err, cartsvc.ErrProductNotFound),
		errors.Is(err, cartsvc.ErrVisitorRequired):
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	default:
		_ = c.Error(err)
		h.logger.Error("request failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

type productResponse struct {
	ID          string    `json:"id"`
	Key         string    `json:"key,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	Name        string    `json:"name"`
	Brand       string    `json:"brand,omitempty"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Image       string    `json:"image,omitempty"`
	Price       string    `json:"price"`
	PriceCents  int64     `json:"priceCents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Key:         p.Key,
		SKU:         p.SKU,
		Name:        p.Name,
		Brand:       p.Brand,
		Description: p.Description,
		Category:    p.Category,
		Image:       p.ImageURL,
		Price:       decimal.New(p.PriceCents, -2).StringFixed(2),
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		CreatedAt:   p.CreatedAt,
	}
}

type cartResponse struct {
	Items         []cartLineResponse `json:"items"`
	TotalQuantity int                `json:"totalQuantity"`
	Total         string             `json:"total"`
	Version       uint64             `json:"version"`
}

type cartLineResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Brand     string `json:"brand,omitempty"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

func toCartResponse(s cart.Snapshot) cartResponse {
	items := make([]cartLineResponse, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, cartLineResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Brand:     it.Brand,
			Image:     it.Image,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		})
	}
	return cartResponse{
		Items:         items,
		TotalQuantity: s.Count(),
		Total:         s.Total().StringFixed(2),
		Version:       s.Version,
	}
}

type adminResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

func toAdminResponse(a domain.Admin) adminResponse {
	return adminResponse{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresIn int           `json:"expiresIn"`
	Admin     adminResponse `json:"admin"`
}
