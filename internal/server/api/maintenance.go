package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagegraph/pagegraph/internal/maintenance"
	"github.com/pagegraph/pagegraph/internal/objects"
)

// MaintenanceHandlers exposes the registered maintenance commands.
type MaintenanceHandlers struct {
	registry *maintenance.Registry
}

func NewMaintenanceHandlers(registry *maintenance.Registry) *MaintenanceHandlers {
	return &MaintenanceHandlers{registry: registry}
}

func (h *MaintenanceHandlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": h.registry.Names()})
}

func (h *MaintenanceHandlers) Execute(c *gin.Context) {
	var req objects.MaintenanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			JSONError(c, http.StatusBadRequest, err)
			return
		}
	}

	err := h.registry.Execute(c.Request.Context(), c.Param("command"), req.Attributes)
	if err != nil {
		var cmdErr *maintenance.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Err == nil {
			// A bare command error without a cause is a misinvocation.
			JSONError(c, http.StatusNotFound, err)
			return
		}

		JSONError(c, http.StatusInternalServerError, err)

		return
	}

	c.Status(http.StatusNoContent)
}
