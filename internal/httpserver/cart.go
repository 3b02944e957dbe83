package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	cartsvc "storefront/internal/service/cart"
)

func (h *handlers) getCart(c *gin.Context) {
	snap, err := h.deps.CartSvc.Get(c.Request.Context(), c.GetString(visitorKey))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snap))
}

func (h *handlers) updateCart(c *gin.Context) {
	var in cartsvc.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid json body")
		return
	}
	snap, err := h.deps.CartSvc.Update(c.Request.Context(), c.GetString(visitorKey), in)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snap))
}

func (h *handlers) clearCart(c *gin.Context) {
	snap, err := h.deps.CartSvc.Clear(c.Request.Context(), c.GetString(visitorKey))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(snap))
}
