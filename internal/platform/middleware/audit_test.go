package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mindmate/mindmate/internal/platform/apierror"
	"github.com/mindmate/mindmate/internal/platform/auth"
)

func auditContext(method, path string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestAudit_AppointmentRead(t *testing.T) {
	var buf bytes.Buffer
	userID := uuid.New()
	apptID := uuid.NewString()
	c, _ := auditContext(http.MethodGet, "/api/appointments/"+apptID, &auth.Principal{UserID: userID, Role: "doctor"})
	c.Set("request_id", "req-7")

	err := Audit(zerolog.New(&buf))(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := logLine(t, &buf)
	if line["message"] != "phi_access" || line["type"] != "audit" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["user_id"] != userID.String() || line["role"] != "doctor" {
		t.Errorf("missing caller: %v", line)
	}
	if line["resource"] != "appointments" || line["resource_id"] != apptID || line["action"] != "read" {
		t.Errorf("unexpected resource fields: %v", line)
	}
	if line["request_id"] != "req-7" || line["status"].(float64) != 200 {
		t.Errorf("unexpected request fields: %v", line)
	}
}

func TestAudit_ForbiddenIsWarn(t *testing.T) {
	var buf bytes.Buffer
	c, _ := auditContext(http.MethodGet, "/api/patients/"+uuid.NewString(), &auth.Principal{UserID: uuid.New(), Role: "doctor"})

	err := Audit(zerolog.New(&buf))(func(c echo.Context) error {
		return apierror.Forbidden("no care relationship")
	})(c)
	if err == nil {
		t.Fatal("expected the handler error to be returned")
	}

	line := logLine(t, &buf)
	if line["level"] != "warn" || line["status"].(float64) != 403 {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestAudit_SkipsOtherRoutes(t *testing.T) {
	for _, path := range []string{"/health", "/api/doctors", "/api/auth/login", "/api/ws"} {
		var buf bytes.Buffer
		c, _ := auditContext(http.MethodGet, path, nil)
		_ = Audit(zerolog.New(&buf))(func(c echo.Context) error { return nil })(c)
		if buf.Len() != 0 {
			t.Errorf("%s: expected no audit line, got %s", path, buf.String())
		}
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestSplitResource(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path, resource, id string
	}{
		{"/api/appointments", "appointments", ""},
		{"/api/appointments/" + id + "/status", "appointments", id},
		{"/api/patients/me", "patients", ""},
		{"/api/messages/unread", "messages", ""},
		{"/health", "", ""},
	}
	for _, tt := range tests {
		resource, gotID := splitResource(tt.path)
		if resource != tt.resource || gotID != tt.id {
			t.Errorf("splitResource(%q) = (%q, %q), want (%q, %q)", tt.path, resource, gotID, tt.resource, tt.id)
		}
	}
}
