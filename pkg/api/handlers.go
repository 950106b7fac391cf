package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcp-mesh/gateway-registry/pkg/models"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
	"github.com/mcp-mesh/gateway-registry/pkg/registry"
	"github.com/mcp-mesh/gateway-registry/pkg/repository/vector"
	"github.com/mcp-mesh/gateway-registry/pkg/search"
)

type handlers struct {
	engine   *search.Engine
	registry *registry.Registry
	store    vector.Store
	logger   observability.Logger
}

// SearchRequest is the POST /api/v1/search body
type SearchRequest struct {
	Query      string   `json:"query" binding:"required"`
	Types      []string `json:"types,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	for _, t := range req.Types {
		switch t {
		case models.EntityTypeServer, models.EntityTypeTool, models.EntityTypeAgent:
		default:
			c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown entity type: " + t})
			return
		}
	}

	rs, err := h.engine.Search(c.Request.Context(), search.Query{
		Text:       req.Query,
		Types:      req.Types,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		h.logger.Error("Search failed", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	c.JSON(http.StatusOK, rs)
}

func (h *handlers) upsertServer(c *gin.Context) {
	var server models.Server
	if err := c.ShouldBindJSON(&server); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid server payload"})
		return
	}
	server.ID = "/" + c.Param("id")

	if err := h.registry.UpsertServer(c.Request.Context(), &server); err != nil {
		h.logger.Error("Server upsert failed", map[string]interface{}{
			"server": server.ID,
			"error":  err.Error(),
		})
		c.JSON(http.StatusBadGateway, errorResponse{Error: "server registered but indexing failed"})
		return
	}
	c.JSON(http.StatusOK, server)
}

func (h *handlers) deleteServer(c *gin.Context) {
	id := "/" + c.Param("id")
	if err := h.registry.DeleteServer(c.Request.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "server not found"})
			return
		}
		c.JSON(http.StatusBadGateway, errorResponse{Error: "server removed but index cleanup failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) toggleServer(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "enabled is required"})
		return
	}

	id := "/" + c.Param("id")
	if err := h.registry.SetServerEnabled(id, *req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "server not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": id, "enabled": *req.Enabled})
}

func (h *handlers) upsertAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid agent payload"})
		return
	}
	agent.ID = c.Param("id")

	if err := h.registry.UpsertAgent(c.Request.Context(), &agent); err != nil {
		h.logger.Error("Agent upsert failed", map[string]interface{}{
			"agent": agent.ID,
			"error": err.Error(),
		})
		c.JSON(http.StatusBadGateway, errorResponse{Error: "agent registered but indexing failed"})
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (h *handlers) deleteAgent(c *gin.Context) {
	id := c.Param("id")
	if err := h.registry.DeleteAgent(c.Request.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "agent not found"})
			return
		}
		c.JSON(http.StatusBadGateway, errorResponse{Error: "agent removed but index cleanup failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) toggleAgent(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "enabled is required"})
		return
	}

	id := c.Param("id")
	if err := h.registry.SetAgentEnabled(id, *req.Enabled); err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "agent not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": *req.Enabled})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"index_mode": string(h.store.Mode()),
	})
}
