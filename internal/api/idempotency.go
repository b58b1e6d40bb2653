package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"inventory-service/internal/redisclient"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdempotencyHeader names the request header carrying the client's key
const IdempotencyHeader = "Idempotency-Key"

const idempotencyLockTTL = 30 * time.Second

// retryableKey marks a response the client is expected to retry under the
// same key
const retryableKey = "idempotency.retryable"

// IdempotencyStore keeps responses for replay. redisclient.Client satisfies it.
type IdempotencyStore interface {
	LoadResponse(ctx context.Context, key string) (*redisclient.CachedResponse, bool, error)
	SaveResponse(ctx context.Context, key string, resp *redisclient.CachedResponse, ttl time.Duration) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// capturingWriter tees the response body so it can be stored
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key on mutating requests. Server errors and retryable
// conflicts are not stored so the client can retry them.
func (h *Handler) idempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if h.idempotency == nil || key == "" || !mutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		if h.replay(c, scoped) {
			return
		}

		acquired, err := h.idempotency.AcquireLock(ctx, scoped, idempotencyLockTTL)
		if err != nil {
			h.logger.Warn("Idempotency lock unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "A request with this Idempotency-Key is in progress",
			})
			return
		}
		defer func() {
			if err := h.idempotency.ReleaseLock(context.Background(), scoped); err != nil {
				h.logger.Warn("Failed to release idempotency lock", zap.String("key", key), zap.Error(err))
			}
		}()

		// another request may have finished between the first lookup and the lock
		if h.replay(c, scoped) {
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError || c.GetBool(retryableKey) {
			return
		}

		resp := &redisclient.CachedResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := h.idempotency.SaveResponse(context.Background(), scoped, resp, h.idempotencyTTL); err != nil {
			h.logger.Warn("Failed to store idempotent response", zap.String("key", key), zap.Error(err))
		}
	}
}

// replay writes a stored response and reports whether one existed
func (h *Handler) replay(c *gin.Context, scoped string) bool {
	cached, ok, err := h.idempotency.LoadResponse(c.Request.Context(), scoped)
	if err != nil {
		h.logger.Warn("Idempotency lookup failed", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}

	c.Header("Idempotent-Replayed", "true")
	c.Data(cached.Status, cached.ContentType, cached.Body)
	c.Abort()
	return true
}

func mutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
