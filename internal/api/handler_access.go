package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jute-fleet-backend/internal/model"
)

// IssuePin handles POST /api/machines/:id/pin.
func (h *Handler) IssuePin(c *gin.Context) {
	if _, ok := h.ownedMachine(c); !ok {
		return
	}
	pin, err := h.engine.IssuePin(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pin)
}

// GetPin handles GET /api/machines/:id/pin, returning the still valid PIN if
// there is one.
func (h *Handler) GetPin(c *gin.Context) {
	if _, ok := h.ownedMachine(c); !ok {
		return
	}
	pin, ok, err := h.engine.ActivePin(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active pin"})
		return
	}
	c.JSON(http.StatusOK, pin)
}

type activateRequest struct {
	Code     string             `json:"code" binding:"required"`
	Duration int                `json:"duration" binding:"required"`
	Unit     model.DurationUnit `json:"unit" binding:"required"`
}

// Activate handles POST /api/machines/:id/activate. Every failure, including
// an unknown machine, is reported the same way.
func (h *Handler) Activate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, _ := currentUser(c)
	ok := h.engine.ValidateAndActivate(c.Param("id"), req.Code, req.Duration, req.Unit, u.ID)
	c.JSON(http.StatusOK, gin.H{"success": ok})
}
