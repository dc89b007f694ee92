package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/utils"
)

// writeError maps the error taxonomy onto status codes: validation 400,
// not found 404, conflict 409, anything else 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	var nf *utils.NotFoundError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field, "reason": ve.Reason})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error(), "kind": nf.Kind, "id": nf.ID})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": "the document was changed concurrently, retry the request"})
	default:
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		config.LogError(h.logger, "handlers", c.FullPath(), c.Request.Method, cid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "correlation_id": cid})
	}
}
