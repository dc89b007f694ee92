package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
)

func (h *Handler) createRecurringTemplate(c *gin.Context) {
	var input models.NewRecurringTemplate
	if !bind(c, &input) {
		return
	}
	tpl, err := h.svc.Recurring.Create(c.Request.Context(), &input)
	respond(h, c, http.StatusCreated, tpl, err)
}

func (h *Handler) listRecurringTemplates(c *gin.Context) {
	list, err := h.svc.Recurring.List(c.Request.Context())
	respond(h, c, http.StatusOK, list, err)
}

func (h *Handler) getRecurringTemplate(c *gin.Context) {
	tpl, err := h.svc.Recurring.Get(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, tpl, err)
}

func (h *Handler) updateRecurringTemplate(c *gin.Context) {
	var input models.UpdateRecurringTemplate
	if !bind(c, &input) {
		return
	}
	tpl, err := h.svc.Recurring.Update(c.Request.Context(), c.Param("id"), &input)
	respond(h, c, http.StatusOK, tpl, err)
}

func (h *Handler) rescheduleRecurringTemplate(c *gin.Context) {
	var input models.RescheduleRecurringTemplate
	if !bind(c, &input) {
		return
	}
	tpl, err := h.svc.Recurring.Reschedule(c.Request.Context(), c.Param("id"), &input)
	respond(h, c, http.StatusOK, tpl, err)
}

func (h *Handler) deactivateRecurringTemplate(c *gin.Context) {
	tpl, err := h.svc.Recurring.Deactivate(c.Request.Context(), c.Param("id"))
	respond(h, c, http.StatusOK, tpl, err)
}

// runRecurring evaluates every template now and returns the run report.
func (h *Handler) runRecurring(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recurring engine not running"})
		return
	}
	ctx := utils.SetTriggerSourceInContext(c.Request.Context(), "manual")
	report, err := h.runner.Tick(ctx)
	respond(h, c, http.StatusOK, report, err)
}
