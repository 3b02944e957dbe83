package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/upload"
)

const receiptField = "receipt"

func (h *handlers) uploadReceipt(c *gin.Context) {
	// Multipart framing overhead on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.Receipts.MaxBytes()+64<<10)

	fh, err := c.FormFile(receiptField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.deps.Metrics.Uploads.WithLabelValues("too_large").Inc()
			h.writeServiceError(c, upload.ErrTooLarge)
			return
		}
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", "multipart field \"receipt\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	defer f.Close()

	stored, err := h.deps.Receipts.Save(fh.Filename, f)
	if err != nil {
		h.deps.Metrics.Uploads.WithLabelValues(uploadOutcome(err)).Inc()
		h.writeServiceError(c, err)
		return
	}
	h.deps.Metrics.Uploads.WithLabelValues("stored").Inc()
	c.JSON(http.StatusCreated, gin.H{"url": stored.URL})
}

func uploadOutcome(err error) string {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return "too_large"
	case errors.Is(err, upload.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, upload.ErrEmpty):
		return "empty"
	default:
		return "error"
	}
}
