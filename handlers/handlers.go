package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/reports"
	"github.com/mmdatafocus/billing_backend/scheduler"
	"github.com/mmdatafocus/billing_backend/workflow"
	"github.com/sirupsen/logrus"
)

// RecurringRunner runs one evaluation of every recurring template.
type RecurringRunner interface {
	Tick(ctx context.Context) (scheduler.RunReport, error)
}

type Handler struct {
	svc        *workflow.Services
	runner     RecurringRunner
	statements *reports.StatementBuilder
	logger     *logrus.Logger
}

func NewHandler(svc *workflow.Services, runner RecurringRunner, statements *reports.StatementBuilder, logger *logrus.Logger) *Handler {
	return &Handler{svc: svc, runner: runner, statements: statements, logger: logger}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	q := r.Group("/quotations")
	q.POST("", h.createQuotation)
	q.GET("", h.listQuotations)
	q.GET("/:id", h.getQuotation)
	q.PUT("/:id", h.updateQuotation)
	q.DELETE("/:id", h.deleteQuotation)
	q.POST("/:id/send", h.sendQuotation)
	q.POST("/:id/decline", h.declineQuotation)
	q.POST("/:id/convert", h.convertQuotation)
	q.GET("/:id/balance", h.quotationBalance)

	inv := r.Group("/invoices")
	inv.POST("", h.createInvoice)
	inv.GET("", h.listInvoices)
	inv.GET("/:id", h.getInvoice)
	inv.PUT("/:id", h.updateInvoice)
	inv.DELETE("/:id", h.deleteInvoice)
	inv.POST("/:id/send", h.sendInvoice)
	inv.GET("/:id/balance", h.invoiceBalance)

	p := r.Group("/payments")
	p.POST("", h.recordPayment)
	p.GET("", h.listPayments)
	p.GET("/:id", h.getPayment)
	p.PUT("/:id", h.updatePayment)
	p.DELETE("/:id", h.removePayment)

	cn := r.Group("/credit-notes")
	cn.POST("", h.issueCreditNote)
	cn.GET("", h.listCreditNotes)
	cn.GET("/:id", h.getCreditNote)
	cn.PUT("/:id", h.updateCreditNote)
	cn.DELETE("/:id", h.removeCreditNote)
	cn.POST("/:id/apply", h.applyCreditNote)

	rt := r.Group("/recurring-templates")
	rt.POST("", h.createRecurringTemplate)
	rt.GET("", h.listRecurringTemplates)
	rt.GET("/:id", h.getRecurringTemplate)
	rt.PUT("/:id", h.updateRecurringTemplate)
	rt.POST("/:id/reschedule", h.rescheduleRecurringTemplate)
	rt.POST("/:id/deactivate", h.deactivateRecurringTemplate)

	r.POST("/recurring/run", h.runRecurring)

	r.GET("/customers/:id/balance", h.customerBalance)
	r.GET("/customers/:id/statement", h.customerStatement)
	r.GET("/customers/:id/statement.xlsx", h.customerStatementXLSX)
}

// bind decodes the JSON body; decoding failures are reported as 400.
func bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "reason": err.Error()})
		return false
	}
	return true
}

func respond[T any](h *Handler, c *gin.Context, status int, result T, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(status, result)
}
