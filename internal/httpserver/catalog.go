package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *handlers) listProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	products, err := h.deps.ProductSvc.List(c.Request.Context(), c.Query("category"), c.Query("q"), limit, offset)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	results := make([]productResponse, 0, len(products))
	for _, p := range products {
		results = append(results, toProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"offset":  offset,
		"results": results,
	})
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.deps.ProductSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(*p))
}
