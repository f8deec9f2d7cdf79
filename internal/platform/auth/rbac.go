package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/platform/apierror"
)

// RequireRole returns middleware that admits callers holding one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return apierror.Unauthorized("authentication required")
			}
			if !allowed[p.Role] {
				return apierror.Forbidden(fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
			}
			return next(c)
		}
	}
}
