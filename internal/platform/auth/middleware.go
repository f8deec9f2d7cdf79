package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mindmate/mindmate/internal/platform/apierror"
)

type contextKey string

const principalKey contextKey = "principal"

// DefaultCookieName carries the session token for browser clients.
const DefaultCookieName = "mindmate_token"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID    uuid.UUID
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

type JWTConfig struct {
	Tokens      *TokenIssuer
	Revocations RevocationStore
	CookieName  string
	Skipper     func(c echo.Context) bool
}

// JWTMiddleware authenticates requests with a bearer token, falling back to
// the session cookie and, for websocket upgrades only, a "token" query
// parameter.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c, cfg.CookieName)
			if err != nil {
				return err
			}

			claims, err := cfg.Tokens.Parse(tokenStr)
			if err != nil {
				return apierror.Unauthorized("invalid or expired token")
			}

			ctx := c.Request().Context()
			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(ctx, claims.ID)
				if err != nil {
					return apierror.Internal(err)
				}
				if revoked {
					return apierror.Unauthorized("token has been revoked")
				}
			}

			p, err := claims.Principal()
			if err != nil {
				return apierror.Unauthorized("invalid or expired token")
			}

			c.Set("user_id", p.UserID.String())
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

func extractToken(c echo.Context, cookieName string) (string, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return "", apierror.Unauthorized("invalid authorization format")
		}
		return token, nil
	}

	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if c.IsWebSocket() {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
	}

	return "", apierror.Unauthorized("missing authorization token")
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) uuid.UUID {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func RoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
