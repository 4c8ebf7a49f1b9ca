package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/pagegraph/pagegraph/internal/gateway"
	"github.com/pagegraph/pagegraph/internal/graph"
	"github.com/pagegraph/pagegraph/internal/objects"
	"github.com/pagegraph/pagegraph/internal/search"
)

// EntityHandlers serves entity CRUD and search through the gateway.
type EntityHandlers struct {
	gateway *gateway.Gateway
}

func NewEntityHandlers(gw *gateway.Gateway) *EntityHandlers {
	return &EntityHandlers{gateway: gw}
}

func entityResponse(e *graph.Entity) objects.EntityResponse {
	return objects.EntityResponse{
		ID:         e.ID,
		Type:       e.Type,
		Properties: e.Properties,
	}
}

// List searches entities of the requested type and its subtypes. Query
// parameters become predicate leaves: exact matching by default, inexact
// with a "loose" suffix, e.g. ?name=Smith&city.loose=berg.
func (h *EntityHandlers) List(c *gin.Context) {
	tree := search.And(search.TypeAndSubtypes(c.Param("type")))

	for key, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}

		if loose, ok := strings.CutSuffix(key, ".loose"); ok {
			tree.Add(search.Inexact(loose, values[0]))
		} else {
			tree.Add(search.Exact(key, values[0]))
		}
	}

	entities, err := h.gateway.Search(c.Request.Context(), tree)
	if err != nil {
		GatewayError(c, err)
		return
	}

	c.JSON(http.StatusOK, objects.EntityListResponse{
		Result: lo.Map(entities, func(e *graph.Entity, _ int) objects.EntityResponse {
			return entityResponse(e)
		}),
	})
}

func (h *EntityHandlers) Get(c *gin.Context) {
	entity, err := h.gateway.ReadEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		GatewayError(c, err)
		return
	}

	c.JSON(http.StatusOK, entityResponse(entity))
}

func (h *EntityHandlers) Create(c *gin.Context) {
	var req objects.CreateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	entity, err := h.gateway.Create(c.Request.Context(), c.Param("type"), req.Properties)
	if err != nil {
		GatewayError(c, err)
		return
	}

	c.JSON(http.StatusCreated, objects.CreatedResponse{ID: entity.ID})
}

func (h *EntityHandlers) Update(c *gin.Context) {
	var req objects.UpdateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, err)
		return
	}

	err := h.gateway.Update(c.Request.Context(), c.Param("id"), req.Properties)
	if err != nil {
		GatewayError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *EntityHandlers) Delete(c *gin.Context) {
	err := h.gateway.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		GatewayError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Relationships lists the relationship entities touching the entity.
func (h *EntityHandlers) Relationships(c *gin.Context) {
	relationships := h.gateway.Relationships(c.Request.Context(), c.Param("id"))

	c.JSON(http.StatusOK, objects.EntityListResponse{
		Result: lo.Map(relationships, func(e *graph.Entity, _ int) objects.EntityResponse {
			return entityResponse(e)
		}),
	})
}
