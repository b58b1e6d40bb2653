package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"inventory-service/internal/notify"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services bundles what the HTTP layer calls into
type Services struct {
	Products *service.ProductService
	Ledger   *service.LedgerService
	Invoices *service.InvoiceService
	Alerts   *service.AlertService
	Reports  *service.ReportService
	Hub      *notify.Hub
	Store    store.Store
}

// Handler contains HTTP handlers
type Handler struct {
	products *service.ProductService
	ledger   *service.LedgerService
	invoices *service.InvoiceService
	alerts   *service.AlertService
	reports  *service.ReportService
	hub      *notify.Hub
	store    store.Store

	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	keepAlive      time.Duration
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(s Services) *Handler {
	return &Handler{
		products:  s.Products,
		ledger:    s.Ledger,
		invoices:  s.Invoices,
		alerts:    s.Alerts,
		reports:   s.Reports,
		hub:       s.Hub,
		store:     s.Store,
		keepAlive: 15 * time.Second,
		logger:    util.GetLogger(),
	}
}

// WithIdempotency enables Idempotency-Key replay on mutating routes
func (h *Handler) WithIdempotency(st IdempotencyStore, ttl time.Duration) *Handler {
	h.idempotency = st
	h.idempotencyTTL = ttl
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/events", h.streamEvents)

	mutating := v1.Group("", h.idempotencyMiddleware())

	inventory := mutating.Group("/inventory")
	{
		inventory.GET("/products", h.listProducts)
		inventory.POST("/products", h.createProduct)
		inventory.GET("/products/:id", h.getProduct)
		inventory.PUT("/products/:id", h.updateProduct)
		inventory.DELETE("/products/:id", h.archiveProduct)

		inventory.GET("/transactions", h.listTransactions)
		inventory.POST("/transactions/sale", h.applySale)
		inventory.POST("/transactions/restock", h.applyRestock)
		inventory.POST("/transactions/adjust", h.applyAdjustment)

		inventory.GET("/alerts", h.listAlerts)
		inventory.PATCH("/alerts/:id/resolve", h.resolveAlert)

		inventory.GET("/reports/summary", h.stockSummary)
		inventory.GET("/reports/top-selling", h.topSelling)
		inventory.GET("/reports/low-stock", h.lowStock)
	}

	invoices := mutating.Group("/invoices")
	{
		invoices.GET("", h.listInvoices)
		invoices.POST("", h.createInvoice)
		invoices.GET("/:id", h.getInvoice)
		invoices.DELETE("/:id", h.deleteInvoice)
		invoices.PUT("/:id/status", h.updateInvoiceStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError maps service errors onto HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		stockErr      *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.As(err, &stockErr):
		body := gin.H{
			"error":       stockErr.Error(),
			"productId":   stockErr.ProductID,
			"productName": stockErr.ProductName,
			"requested":   stockErr.Requested,
			"available":   stockErr.Available,
		}
		if stockErr.Line >= 0 {
			body["line"] = stockErr.Line
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.Set(retryableKey, true)
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Concurrent update, retry the request",
			"retryable": true,
		})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// badRequest writes a 400 for malformed input that never reached a service
func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid id", nil)
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return v, true
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return v, true
}

// actor falls back to the X-Actor header when the body names nobody
func actor(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.GetHeader("X-Actor")
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
