package server

import (
	"net/http"

	"github.com/OFFIS-RIT/kgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")

	// Component routes
	api.POST("/extract", routes.ExtractEntitiesHandler)
	api.POST("/relationships/build", routes.BuildRelationshipsHandler)
	api.POST("/embeddings", routes.EmbedHandler)
	api.POST("/search", routes.SearchHandler)

	// Document routes
	api.POST("/documents", routes.CreateDocumentHandler)
	api.POST("/documents/link", routes.LinkDocumentsHandler)
	api.DELETE("/documents/:id", routes.DeleteDocumentHandler)
	api.POST("/documents/:id/chunks", routes.ChunkDocumentHandler)
	api.POST("/documents/:id/process", routes.ProcessDocumentHandler)

	// Graph read routes
	api.GET("/graph", routes.GetKnowledgeGraphHandler)
	api.GET("/graph/entities/:id/neighborhood", routes.GetNeighborhoodHandler)
	api.GET("/graph/paths", routes.FindPathsHandler)
	api.GET("/graph/centrality", routes.GetCentralityHandler)
	api.GET("/graph/communities", routes.GetCommunitiesHandler)
	api.GET("/graph/statistics", routes.GetStatisticsHandler)

	// Graph mutation routes
	api.POST("/graph/relationships", routes.CreateRelationshipHandler)
	api.PATCH("/graph/relationships/:id", routes.UpdateRelationshipHandler)
	api.DELETE("/graph/relationships/:id", routes.DeleteRelationshipHandler)
	api.POST("/graph/entities/merge", routes.MergeEntitiesHandler)

	// Interchange routes
	api.GET("/graph/export", routes.ExportGraphHandler)
	api.POST("/graph/import", routes.ImportGraphHandler)
}
