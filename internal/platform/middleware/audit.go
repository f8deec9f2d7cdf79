package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mindmate/mindmate/internal/platform/apierror"
	"github.com/mindmate/mindmate/internal/platform/auth"
)

// AuditEntry describes one access to health data.
type AuditEntry struct {
	UserID     string
	Role       string
	Resource   string
	ResourceID string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// auditedResources are the /api collections that expose patient data.
var auditedResources = map[string]bool{
	"patients":     true,
	"appointments": true,
	"messages":     true,
}

// Audit emits a "phi_access" log line for every request that touches patient
// records, appointments or messages, after the handler has run.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, id := splitResource(req.URL.Path)
			if !auditedResources[resource] {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Resource:   resource,
				ResourceID: id,
				Action:     httpMethodToAction(req.Method),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}
			if err != nil {
				// The error handler has not written the response yet.
				entry.StatusCode = apierror.From(err).Status()
			}
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				entry.UserID = p.UserID.String()
				entry.Role = p.Role
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			evt := logger.Info()
			if entry.StatusCode == http.StatusForbidden {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResource returns the collection and, when the next segment is a UUID,
// the record id of an /api path:
//
//	/api/appointments             -> appointments, ""
//	/api/appointments/<id>/status -> appointments, <id>
//	/api/patients/me              -> patients, ""
func splitResource(path string) (string, string) {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return "", ""
	}
	segments := strings.Split(rest, "/")
	if len(segments) > 1 && isUUIDLike(segments[1]) {
		return segments[0], segments[1]
	}
	return segments[0], ""
}

func isUUIDLike(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
