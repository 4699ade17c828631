package api

import (
	"io"

	"github.com/gin-gonic/gin"
)

// Stream handles GET /api/stream as Server-Sent Events. The first event is
// the current snapshot; every committed change sends the latest one.
func (h *Handler) Stream(c *gin.Context) {
	initial, updates, unsubscribe := h.engine.Subscribe(viewer(c))
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", initial)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
