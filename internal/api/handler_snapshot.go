package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUsers handles GET /api/users.
func (h *Handler) GetUsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.users.List())
}

// GetSnapshot handles GET /api/snapshot.
func (h *Handler) GetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot(viewer(c)))
}

// GetRunLogs handles GET /api/runlogs, newest first.
func (h *Handler) GetRunLogs(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.RunLogs(viewer(c)))
}

// GetRunLog handles GET /api/runlogs/:id.
func (h *Handler) GetRunLog(c *gin.Context) {
	l, ok := h.engine.RunLog(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run log not found"})
		return
	}
	m, err := h.engine.GetMachine(l.MachineID)
	if err != nil || !viewer(c).CanSee(m) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run log not found"})
		return
	}
	c.JSON(http.StatusOK, l)
}
