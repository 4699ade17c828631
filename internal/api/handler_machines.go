package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jute-fleet-backend/internal/fleet"
	"jute-fleet-backend/internal/model"
)

// visibleMachine loads the machine named in the path and hides it from
// users who cannot see it.
func (h *Handler) visibleMachine(c *gin.Context) (model.Machine, fleet.Viewer, bool) {
	v := viewer(c)
	m, err := h.engine.GetMachine(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return model.Machine{}, v, false
	}
	if !v.CanSee(m) {
		writeError(c, fleet.ErrNotFound)
		return model.Machine{}, v, false
	}
	return m, v, true
}

// ownedMachine is visibleMachine restricted to the machine's owner.
func (h *Handler) ownedMachine(c *gin.Context) (model.Machine, bool) {
	m, v, ok := h.visibleMachine(c)
	if !ok {
		return m, false
	}
	if !v.Owns(m) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can do that"})
		return m, false
	}
	return m, true
}

// respond writes m as v sees it.
func respond(c *gin.Context, v fleet.Viewer, m model.Machine) {
	if !v.Owns(m) {
		m.Pin = nil
	}
	c.JSON(http.StatusOK, m)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, v, ok := h.visibleMachine(c)
	if !ok {
		return
	}
	respond(c, v, m)
}

// ToggleRun handles POST /api/machines/:id/toggle.
func (h *Handler) ToggleRun(c *gin.Context) {
	_, v, ok := h.visibleMachine(c)
	if !ok {
		return
	}
	m, err := h.engine.ToggleRun(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, v, m)
}

type setModeRequest struct {
	Mode model.MachineMode `json:"mode" binding:"required"`
}

// SetMode handles PUT /api/machines/:id/mode.
func (h *Handler) SetMode(c *gin.Context) {
	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, v, ok := h.visibleMachine(c)
	if !ok {
		return
	}
	m, err := h.engine.SetMode(c.Param("id"), req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, v, m)
}

type setSpeedRequest struct {
	Speed *float64 `json:"speed" binding:"required"`
}

// SetSpeed handles PUT /api/machines/:id/speed.
func (h *Handler) SetSpeed(c *gin.Context) {
	var req setSpeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, v, ok := h.visibleMachine(c)
	if !ok {
		return
	}
	m, err := h.engine.SetSpeed(c.Param("id"), *req.Speed)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, v, m)
}

// TriggerAntiJam handles POST /api/machines/:id/antijam.
func (h *Handler) TriggerAntiJam(c *gin.Context) {
	_, v, ok := h.visibleMachine(c)
	if !ok {
		return
	}
	m, err := h.engine.TriggerAntiJam(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, v, m)
}

// Reclaim handles POST /api/machines/:id/reclaim.
func (h *Handler) Reclaim(c *gin.Context) {
	if _, ok := h.ownedMachine(c); !ok {
		return
	}
	m, err := h.engine.Reclaim(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
