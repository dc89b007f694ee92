package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/reports"
)

func (h *Handler) customerBalance(c *gin.Context) {
	b, err := h.svc.Balances.CustomerBalance(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, b, err)
}

func (h *Handler) customerStatement(c *gin.Context) {
	st, err := h.statements.CustomerStatement(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, st, err)
}

func (h *Handler) customerStatementXLSX(c *gin.Context) {
	st, err := h.statements.CustomerStatement(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := reports.WriteStatementXLSX(&buf, st); err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=statement-"+st.CustomerId+".xlsx")
	c.Data(http.StatusOK, reports.XLSXContentType, buf.Bytes())
}
