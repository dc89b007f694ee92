package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/models"
)

func (h *Handler) createQuotation(c *gin.Context) {
	var input models.NewQuotation
	if !bind(c, &input) {
		return
	}
	q, err := h.svc.Documents.CreateQuotation(c.Request.Context(), &input)
	respond(h, c, http.StatusCreated, q, err)
}

func (h *Handler) listQuotations(c *gin.Context) {
	list, err := h.svc.Documents.ListQuotations(c.Request.Context())
	respond(h, c, http.StatusOK, list, err)
}

func (h *Handler) getQuotation(c *gin.Context) {
	q, err := h.svc.Documents.GetQuotation(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, q, err)
}

func (h *Handler) updateQuotation(c *gin.Context) {
	var input models.NewQuotation
	if !bind(c, &input) {
		return
	}
	q, err := h.svc.Documents.UpdateQuotation(c.Request.Context(), c.Param("id"), &input)
	respond(h, c, http.StatusOK, q, err)
}

func (h *Handler) deleteQuotation(c *gin.Context) {
	if err := h.svc.Documents.DeleteQuotation(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sendQuotation(c *gin.Context) {
	q, err := h.svc.Documents.MarkQuotationSent(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, q, err)
}

func (h *Handler) declineQuotation(c *gin.Context) {
	q, err := h.svc.Documents.DeclineQuotation(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, q, err)
}

func (h *Handler) convertQuotation(c *gin.Context) {
	inv, err := h.svc.Conversion.ConvertQuotation(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusCreated, inv, err)
}

func (h *Handler) quotationBalance(c *gin.Context) {
	b, err := h.svc.Balances.QuotationBalance(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, b, err)
}

func (h *Handler) createInvoice(c *gin.Context) {
	var input models.NewInvoice
	if !bind(c, &input) {
		return
	}
	inv, err := h.svc.Documents.CreateInvoice(c.Request.Context(), &input)
	respond(h, c, http.StatusCreated, inv, err)
}

func (h *Handler) listInvoices(c *gin.Context) {
	list, err := h.svc.Documents.ListInvoices(c.Request.Context())
	respond(h, c, http.StatusOK, list, err)
}

func (h *Handler) getInvoice(c *gin.Context) {
	inv, err := h.svc.Documents.GetInvoice(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, inv, err)
}

func (h *Handler) updateInvoice(c *gin.Context) {
	var input models.NewInvoice
	if !bind(c, &input) {
		return
	}
	inv, err := h.svc.Documents.UpdateInvoice(c.Request.Context(), c.Param("id"), &input)
	respond(h, c, http.StatusOK, inv, err)
}

func (h *Handler) deleteInvoice(c *gin.Context) {
	if err := h.svc.Documents.DeleteInvoice(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sendInvoice(c *gin.Context) {
	inv, err := h.svc.Documents.MarkInvoiceSent(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, inv, err)
}

// invoiceBalance answers with `outstanding` computed by the invoice formula.
// Converted invoices also carry `quoted_outstanding`, which matches the
// printed quotation and can differ when the quotation had a discount or
// shipping.
func (h *Handler) invoiceBalance(c *gin.Context) {
	b, err := h.svc.Balances.InvoiceBalance(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, b, err)
}
