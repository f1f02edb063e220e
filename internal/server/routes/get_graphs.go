package routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/dochub/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
)

func graphResponse(c echo.Context, g common.Graph, err error, what string) error {
	if err != nil {
		logger.Error("Failed to load graph", "scope", what, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if g.Nodes == nil {
		g.Nodes = []common.GraphNode{}
	}
	if g.Edges == nil {
		g.Edges = []common.GraphEdge{}
	}
	return c.JSON(http.StatusOK, g)
}

func GetDocumentGraphHandler(c echo.Context) error {
	params := new(documentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	client := c.(*middleware.AppContext).App.Services.Graph
	g, err := client.GetDocumentGraph(c.Request().Context(), params.ID)
	return graphResponse(c, g, err, "document:"+params.ID)
}

func GetFolderGraphHandler(c echo.Context) error {
	params := new(documentParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	client := c.(*middleware.AppContext).App.Services.Graph
	g, err := client.GetFolderGraph(c.Request().Context(), params.ID)
	return graphResponse(c, g, err, "folder:"+params.ID)
}

// GetEntityGraphHandler returns every mention of an entity across
// documents together with its direct neighbours.
func GetEntityGraphHandler(c echo.Context) error {
	type getEntityGraphParams struct {
		Name string `query:"name" validate:"required"`
		Type string `query:"type"`
	}

	params := new(getEntityGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	params.Name = strings.TrimSpace(params.Name)
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "name is required"})
	}

	client := c.(*middleware.AppContext).App.Services.Graph
	g, err := client.GetEntityGraph(c.Request().Context(), params.Name, strings.TrimSpace(params.Type))
	return graphResponse(c, g, err, "entity:"+params.Name)
}
