package api

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/pagegraph/pagegraph/internal/log"
	"github.com/pagegraph/pagegraph/internal/notify"
)

// LiveHandlers streams live-update messages over server-sent events.
type LiveHandlers struct {
	hub *notify.Hub
}

func NewLiveHandlers(hub *notify.Hub) *LiveHandlers {
	return &LiveHandlers{hub: hub}
}

// Stream subscribes the client to the hub for the lifetime of the
// request. Each message becomes one SSE event with a JSON payload.
func (h *LiveHandlers) Stream(c *gin.Context) {
	ch, cancel := h.hub.Subscribe()
	defer cancel()

	ctx := c.Request.Context()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	log.Debug(ctx, "live subscriber connected")

	c.Stream(func(_ io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}

			c.SSEvent(string(msg.Kind), msg)

			return true
		case <-ctx.Done():
			return false
		}
	})

	log.Debug(ctx, "live subscriber disconnected")
}
