package api

import (
	"net/http"

	"inventory-service/internal/service"
	"inventory-service/internal/store"

	"github.com/gin-gonic/gin"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor,omitempty"`
}

func (h *Handler) listInvoices(c *gin.Context) {
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	invoices, total, err := h.invoices.ListInvoices(c.Request.Context(), store.InvoiceFilter{
		Status: c.Query("status"),
		Query:  c.Query("q"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices": invoices,
		"total":    total,
	})
}

func (h *Handler) createInvoice(c *gin.Context) {
	var req service.CreateInvoiceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.Actor = actor(c, req.Actor)

	inv, err := h.invoices.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) getInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	inv, err := h.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func (h *Handler) deleteInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.invoices.DeleteInvoice(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// updateInvoiceStatus moves an invoice between statuses; Paid settles stock
func (h *Handler) updateInvoiceStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	inv, err := h.invoices.UpdateStatus(c.Request.Context(), id, req.Status, actor(c, req.Actor))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}
