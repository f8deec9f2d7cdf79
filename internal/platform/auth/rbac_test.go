package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/platform/apierror"
)

func contextWithRole(role string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if role != "" {
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: uuid.New(), Role: role}))
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithRole("doctor")
	if err := RequireRole("doctor")(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_AnyOf(t *testing.T) {
	c := contextWithRole("patient")
	if err := RequireRole("doctor", "patient")(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	c := contextWithRole("patient")
	err := RequireRole("doctor")(okHandler)(c)
	expectKind(t, err, apierror.KindForbidden)
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	c := contextWithRole("")
	err := RequireRole("doctor")(okHandler)(c)
	expectKind(t, err, apierror.KindAuth)
}
