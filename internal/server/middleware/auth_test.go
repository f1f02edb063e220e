package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestUserFromClaims(t *testing.T) {
	tests := []struct {
		name     string
		claims   jwt.MapClaims
		wantID   string
		wantRole string
		wantOK   bool
		allPerms bool
	}{
		{name: "string id", claims: jwt.MapClaims{"id": "u-1"}, wantID: "u-1", wantRole: "user", wantOK: true},
		{name: "numeric id", claims: jwt.MapClaims{"id": float64(42), "role": "admin"}, wantID: "42", wantRole: "admin", wantOK: true, allPerms: true},
		{name: "subject", claims: jwt.MapClaims{"sub": "u-2"}, wantID: "u-2", wantRole: "user", wantOK: true},
		{name: "missing", claims: jwt.MapClaims{}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok := userFromClaims(tt.claims)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if user.UserID != tt.wantID || user.Role != tt.wantRole {
				t.Fatalf("user = %+v", user)
			}
			if tt.allPerms && len(user.Permissions) != len(allPermissions) {
				t.Fatalf("admin without explicit permissions should get all, got %v", user.Permissions)
			}
		})
	}
}

func TestAuthMiddleware_MasterKey(t *testing.T) {
	e := echo.New()
	a := &App{MasterAPIKey: "secret", MasterUserID: "master"}

	handler := AppContextMiddleware(a)(AuthMiddleware(func(c echo.Context) error {
		user := c.(*AppContext).User
		if !HasPermission(user, PermSchemaUpdateSystem) {
			t.Fatalf("master user lacks permissions: %+v", user)
		}
		return c.String(http.StatusOK, user.UserID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "master" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key should be rejected, got %d", rec.Code)
	}
}
