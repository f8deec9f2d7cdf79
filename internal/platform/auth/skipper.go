package auth

import (
	"github.com/labstack/echo/v4"
)

// publicRoutes are reachable without a session, keyed by "METHOD path" using
// the registered route pattern.
var publicRoutes = map[string]bool{
	"GET /health":             true,
	"POST /api/auth/register": true,
	"POST /api/auth/login":    true,
	"GET /api/doctors":        true,
	"GET /api/doctors/:id":    true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
