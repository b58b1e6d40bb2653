package api

import (
	"net/http"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/store"

	"github.com/gin-gonic/gin"
)

// updateProductRequest is a field patch with an optional restock quantity
type updateProductRequest struct {
	models.ProductPatch
	Restock *int   `json:"restock,omitempty"`
	Note    string `json:"note,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

func (h *Handler) listProducts(c *gin.Context) {
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	products, total, err := h.products.ListProducts(c.Request.Context(), store.ProductFilter{
		Query:           c.Query("q"),
		Category:        c.Query("category"),
		IncludeArchived: c.Query("includeArchived") == "true",
		Page:            page,
		Limit:           limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    total,
	})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	change, err := h.products.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, change)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// updateProduct patches fields. A restock quantity moves the edit through
// the ledger so the patch and the stock change commit together.
func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.Restock != nil {
		in := service.RestockInput{
			ProductID: id,
			Quantity:  *req.Restock,
			Note:      req.Note,
			Actor:     actor(c, req.Actor),
		}
		if !req.ProductPatch.IsEmpty() {
			patch := req.ProductPatch
			in.Patch = &patch
		}

		result, err := h.ledger.ApplyRestock(c.Request.Context(), in)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	change, err := h.products.UpdateProduct(c.Request.Context(), id, req.ProductPatch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, change)
}

func (h *Handler) archiveProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.products.ArchiveProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) listTransactions(c *gin.Context) {
	productID, ok := queryInt64(c, "productId")
	if !ok {
		return
	}
	invoiceID, ok := queryInt64(c, "invoiceId")
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	transactions, err := h.ledger.ListTransactions(c.Request.Context(), store.TransactionFilter{
		ProductID: productID,
		Type:      c.Query("type"),
		InvoiceID: invoiceID,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (h *Handler) applySale(c *gin.Context) {
	var req service.SaleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.Actor = actor(c, req.Actor)

	result, err := h.ledger.ApplySale(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) applyRestock(c *gin.Context) {
	var req service.RestockInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.Actor = actor(c, req.Actor)

	result, err := h.ledger.ApplyRestock(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) applyAdjustment(c *gin.Context) {
	var req service.AdjustmentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	req.Actor = actor(c, req.Actor)

	result, err := h.ledger.ApplyAdjustment(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) listAlerts(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	alerts, err := h.alerts.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *Handler) resolveAlert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	alert, err := h.alerts.Resolve(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

func (h *Handler) stockSummary(c *gin.Context) {
	summary, err := h.reports.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) topSelling(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	sellers, err := h.reports.TopSelling(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": sellers})
}

func (h *Handler) lowStock(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	products, err := h.reports.LowStock(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}
