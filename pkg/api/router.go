// Package api exposes the registry search core over HTTP using gin.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mcp-mesh/gateway-registry/pkg/observability"
	"github.com/mcp-mesh/gateway-registry/pkg/registry"
	"github.com/mcp-mesh/gateway-registry/pkg/repository/vector"
	"github.com/mcp-mesh/gateway-registry/pkg/search"
)

// Deps carries the wired components the API serves
type Deps struct {
	Engine   *search.Engine
	Registry *registry.Registry
	Store    vector.Store
	Logger   observability.Logger
	Metrics  observability.MetricsClient
}

// NewRouter builds the gin engine with all routes registered
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = observability.NewNoopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNoopMetricsClient()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger, deps.Metrics))

	h := &handlers{
		engine:   deps.Engine,
		registry: deps.Registry,
		store:    deps.Store,
		logger:   deps.Logger,
	}

	router.GET("/healthz", h.health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/search", h.search)

		// Server paths carry a leading slash ("/weather-api"); the route
		// param is the path without it.
		v1.PUT("/servers/:id", h.upsertServer)
		v1.DELETE("/servers/:id", h.deleteServer)
		v1.POST("/servers/:id/toggle", h.toggleServer)

		v1.PUT("/agents/:id", h.upsertAgent)
		v1.DELETE("/agents/:id", h.deleteAgent)
		v1.POST("/agents/:id/toggle", h.toggleAgent)
	}

	return router
}

func requestLogger(logger observability.Logger, metrics observability.MetricsClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		stop := metrics.StartTimer("http.request.duration", map[string]string{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})
		c.Next()
		stop()

		logger.Debug("Handled request", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})
	}
}
