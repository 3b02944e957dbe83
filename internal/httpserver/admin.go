package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	adminsvc "storefront/internal/service/admin"
)

func (h *handlers) adminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid json body")
		return
	}
	a, token, err := h.deps.AdminSvc.Login(c.Request.Context(), req.Email, req.Password)
	h.countLogin(err)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: h.deps.AdminSvc.AccessTTLSeconds(),
		Admin:     toAdminResponse(*a),
	})
}

func (h *handlers) adminProfile(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}
	a, err := h.deps.AdminSvc.LookupByToken(c.Request.Context(), token)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin": toAdminResponse(*a)})
}

func (h *handlers) adminLogout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}
	if err := h.deps.AdminSvc.Logout(c.Request.Context(), token); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) countLogin(err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, adminsvc.ErrInvalidCredentials):
		outcome = "invalid_credentials"
	case errors.Is(err, adminsvc.ErrInvalidInput):
		outcome = "invalid_input"
	default:
		outcome = "error"
		h.logger.Warn("admin login error", zap.Error(err))
	}
	h.deps.Metrics.Logins.WithLabelValues(outcome).Inc()
}
