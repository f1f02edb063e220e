package server

import (
	"github.com/OFFIS-RIT/dochub/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/dochub/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Document routes
	apiRoutes.POST("/documents", routes.CreateDocumentHandler, middleware.RequirePermission(middleware.PermDocumentCreate))
	apiRoutes.POST("/documents/:id/process", routes.ProcessDocumentHandler, middleware.RequirePermission(middleware.PermDocumentProcess))
	apiRoutes.POST("/documents/:id/reprocess", routes.ReprocessDocumentHandler, middleware.RequirePermission(middleware.PermDocumentProcess))
	apiRoutes.GET("/documents/:id/status", routes.GetDocumentStatusHandler)
	apiRoutes.GET("/documents/:id/logs", routes.GetDocumentLogsHandler)
	apiRoutes.GET("/documents/:id/artifacts/:stage", routes.GetDocumentArtifactsHandler)

	// Graph routes
	apiRoutes.GET("/documents/:id/graph", routes.GetDocumentGraphHandler)
	apiRoutes.GET("/folders/:id/graph", routes.GetFolderGraphHandler)
	apiRoutes.GET("/entities/graph", routes.GetEntityGraphHandler)

	// Schema routes
	apiRoutes.GET("/schemas/active", routes.GetActiveSchemaHandler)
	apiRoutes.PUT("/schemas/active", routes.PutActiveSchemaHandler, middleware.RequireSchemaWrite())
}
