package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/procura/internal/presentation/http/response"
	"github.com/Additional-Code/procura/internal/purchase"
	"github.com/Additional-Code/procura/pkg/errorbank"
)

const roleContextKey = "auth.role"

// RequireSession rejects requests without a valid Bearer token.
func RequireSession(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok {
				return response.New(c).WithError(errorbank.Unauthorized("authorization is missing")).Build()
			}
			role, err := a.Verify(token)
			if err != nil {
				return response.New(c).WithError(errorbank.Unauthorized("invalid session token", errorbank.WithCause(err))).Build()
			}
			c.Set(roleContextKey, role)
			return next(c)
		}
	}
}

// OptionalSession records the caller's role when a valid token is present and
// lets anonymous requests through.
func OptionalSession(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := bearerToken(c); ok {
				if role, err := a.Verify(token); err == nil {
					c.Set(roleContextKey, role)
				}
			}
			return next(c)
		}
	}
}

// RoleFrom returns the role stored by the session middleware.
func RoleFrom(c echo.Context) (purchase.Role, bool) {
	role, ok := c.Get(roleContextKey).(purchase.Role)
	return role, ok
}

func bearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
