package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagegraph/pagegraph/internal/build"
	"github.com/pagegraph/pagegraph/internal/objects"
)

// SystemHandlers serves health and build information.
type SystemHandlers struct{}

func NewSystemHandlers() *SystemHandlers {
	return &SystemHandlers{}
}

func (h *SystemHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, objects.HealthResponse{
		Status:  "ok",
		Version: build.Version,
	})
}

func (h *SystemHandlers) BuildInfo(c *gin.Context) {
	c.JSON(http.StatusOK, build.GetBuildInfo())
}
