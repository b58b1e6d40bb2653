package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const sseBuffer = 64

// streamEvents relays post-commit notifications as Server-Sent Events.
// ?events=a,b limits the stream to the named notifications.
func (h *Handler) streamEvents(c *gin.Context) {
	var only map[string]bool
	if raw := c.Query("events"); raw != "" {
		only = make(map[string]bool)
		for _, name := range strings.Split(raw, ",") {
			only[strings.TrimSpace(name)] = true
		}
	}

	events, cancel := h.hub.Subscribe(sseBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if only == nil || only[ev.Name] {
				c.SSEvent(ev.Name, ev)
			}
			return true
		case <-keepAlive.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
