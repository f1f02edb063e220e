package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

const (
	PermDocumentCreate  = "document.create"
	PermDocumentProcess = "document.process"
	PermSchemaUpdate    = "schema.update"
	// PermSchemaUpdateSystem allows replacing the schema shared by all users.
	PermSchemaUpdateSystem = "schema.update:system"
)

var allPermissions = []string{
	PermDocumentCreate,
	PermDocumentProcess,
	PermSchemaUpdate,
	PermSchemaUpdateSystem,
}

func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return slices.Contains(user.Permissions, permission)
}

// CanUpdateSchema reports whether user may write the schema of the given
// scope. Users always own their personal scope once they hold
// schema.update; the system scope needs its own permission.
func CanUpdateSchema(user *AppUser, system bool) bool {
	if system {
		return HasPermission(user, PermSchemaUpdateSystem)
	}
	return HasPermission(user, PermSchemaUpdate) || HasPermission(user, PermSchemaUpdateSystem)
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return require(func(user *AppUser) bool {
		return HasPermission(user, permission)
	}, "Forbidden: missing permission "+permission)
}

// RequireSchemaWrite guards schema writes; the handler still checks the
// requested scope.
func RequireSchemaWrite() echo.MiddlewareFunc {
	return require(func(user *AppUser) bool {
		return CanUpdateSchema(user, false)
	}, "Forbidden: missing schema permission")
}

func require(allowed func(*AppUser) bool, message string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if !allowed(user) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": message})
			}
			return next(c)
		}
	}
}
