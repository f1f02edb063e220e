package routes

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/dochub/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/schema"
)

type schemaResponse struct {
	Message string                   `json:"message,omitempty"`
	Schema  *schema.Schema           `json:"schema,omitempty"`
	Errors  []schema.ValidationError `json:"errors,omitempty"`
}

// GetActiveSchemaHandler resolves the schema the caller's documents are
// processed with: their own scope, then the system scope, then the
// built-in default.
func GetActiveSchemaHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, schemaResponse{Message: "Unauthorized"})
	}

	scope := user.UserID
	if c.QueryParam("scope") == "system" {
		scope = schema.SystemScope
	}

	schemas := c.(*middleware.AppContext).App.Services.Schemas
	s, err := schemas.Resolve(c.Request().Context(), scope)
	if err != nil {
		logger.Error("Failed to resolve schema", "scope", scope, "err", err)
		return c.JSON(http.StatusInternalServerError, schemaResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, schemaResponse{Schema: s})
}

// PutActiveSchemaHandler stores a new version of the caller's schema, or
// of the system schema with ?scope=system. The body is JSON or YAML.
func PutActiveSchemaHandler(c echo.Context) error {
	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, schemaResponse{Message: "Unauthorized"})
	}

	system := c.QueryParam("scope") == "system"
	if !middleware.CanUpdateSchema(user, system) {
		return c.JSON(http.StatusForbidden, schemaResponse{Message: "Forbidden"})
	}
	scope := user.UserID
	if system {
		scope = schema.SystemScope
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		return c.JSON(http.StatusBadRequest, schemaResponse{Message: "Invalid request body"})
	}

	// JSON is a subset of YAML, so one parser serves both content types.
	s, err := schema.ParseYAML(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, schemaResponse{Message: "Invalid schema: " + err.Error()})
	}

	reason := c.QueryParam("reason")
	if reason == "" {
		reason = "replaced by " + user.UserID
	}

	schemas := c.(*middleware.AppContext).App.Services.Schemas
	saved, err := schemas.Replace(c.Request().Context(), scope, s, reason)
	if err != nil {
		var verrs schema.ValidationErrors
		if errors.As(err, &verrs) {
			return c.JSON(http.StatusUnprocessableEntity, schemaResponse{Message: "Schema is invalid", Errors: verrs})
		}
		if errors.Is(err, schema.ErrVersionConflict) {
			return c.JSON(http.StatusConflict, schemaResponse{Message: "Schema changed concurrently, try again"})
		}
		logger.Error("Failed to replace schema", "scope", scope, "err", err)
		return c.JSON(http.StatusInternalServerError, schemaResponse{Message: "Internal server error"})
	}

	logger.Info("Schema replaced", "scope", scope, "version", saved.Version, "user", user.UserID)
	return c.JSON(http.StatusOK, schemaResponse{Message: "Schema updated", Schema: saved})
}
