package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/workflow"
	"github.com/shopspring/decimal"
)

// record options come from the query: ?require_target=true
func recordOptions(c *gin.Context) workflow.RecordOptions {
	return workflow.RecordOptions{RequireTarget: c.Query("require_target") == "true"}
}

func (h *Handler) recordPayment(c *gin.Context) {
	var input models.NewPayment
	if !bind(c, &input) {
		return
	}
	p, err := h.svc.Payments.Record(c.Request.Context(), &input, recordOptions(c))
	respond(h, c, http.StatusCreated, p, err)
}

func (h *Handler) updatePayment(c *gin.Context) {
	var input models.NewPayment
	if !bind(c, &input) {
		return
	}
	p, err := h.svc.Payments.Update(c.Request.Context(), c.Param("id"), &input, recordOptions(c))
	respond(h, c, http.StatusOK, p, err)
}

func (h *Handler) removePayment(c *gin.Context) {
	if err := h.svc.Payments.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getPayment(c *gin.Context) {
	p, err := h.svc.Payments.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, p, err)
}

// listPayments filters by invoice_id, quote_id or customer_id, in that order.
func (h *Handler) listPayments(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		list []*models.Payment
		err  error
	)
	switch {
	case c.Query("invoice_id") != "":
		list, err = h.svc.Payments.ByInvoice(ctx, c.Query("invoice_id"))
	case c.Query("quote_id") != "":
		list, err = h.svc.Payments.ByQuote(ctx, c.Query("quote_id"))
	case c.Query("customer_id") != "":
		list, err = h.svc.Payments.ByCustomer(ctx, c.Query("customer_id"))
	default:
		list, err = h.svc.Payments.List(ctx)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list, "total": h.svc.Payments.Sum(list)})
}

func (h *Handler) issueCreditNote(c *gin.Context) {
	var input models.NewCreditNote
	if !bind(c, &input) {
		return
	}
	cn, err := h.svc.Credits.Issue(c.Request.Context(), &input)
	respond(h, c, http.StatusCreated, cn, err)
}

func (h *Handler) updateCreditNote(c *gin.Context) {
	var input models.NewCreditNote
	if !bind(c, &input) {
		return
	}
	cn, err := h.svc.Credits.Update(c.Request.Context(), c.Param("id"), &input)
	respond(h, c, http.StatusOK, cn, err)
}

type applyCreditRequest struct {
	InvoiceId string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

func (h *Handler) applyCreditNote(c *gin.Context) {
	var req applyCreditRequest
	if !bind(c, &req) {
		return
	}
	cn, err := h.svc.Credits.Apply(c.Request.Context(), c.Param("id"), req.InvoiceId, req.Amount)
	respond(h, c, http.StatusOK, cn, err)
}

func (h *Handler) removeCreditNote(c *gin.Context) {
	if err := h.svc.Credits.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCreditNote(c *gin.Context) {
	cn, err := h.svc.Credits.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, cn, err)
}

func (h *Handler) listCreditNotes(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		list []*models.CreditNote
		err  error
	)
	switch {
	case c.Query("invoice_id") != "":
		list, err = h.svc.Credits.ByInvoice(ctx, c.Query("invoice_id"))
	case c.Query("customer_id") != "":
		list, err = h.svc.Credits.ByCustomer(ctx, c.Query("customer_id"))
	default:
		list, err = h.svc.Credits.List(ctx)
	}
	respond(h, c, http.StatusOK, list, err)
}
