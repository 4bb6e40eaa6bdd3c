package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys set by authMiddleware
const (
	ctxSubject = "subject"
	ctxScope   = "scope"
)

// authMiddleware validates bearer tokens. It lets every request through
// when no auth secret is configured.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.tokens.Enabled() {
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			claims, err := s.tokens.ValidateToken(tokenString)
			if err != nil {
				s.logger.Warnw("Invalid token", "error", err.Error(), "ip", c.RealIP())
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.Set(ctxSubject, claims.Subject)
			c.Set(ctxScope, claims.Scope)

			return next(c)
		}
	}
}

// requireScope rejects tokens whose scope list lacks scope. A token
// without a scope claim is unrestricted.
func (s *Server) requireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.tokens.Enabled() {
				return next(c)
			}

			granted := getScopeFromContext(c)
			if granted == "" {
				return next(c)
			}
			for _, g := range strings.Fields(granted) {
				if g == scope || g == "*" {
					return next(c)
				}
			}

			s.logger.Warnw("Insufficient scope",
				"subject", getSubjectFromContext(c),
				"required", scope,
				"granted", granted,
				"endpoint", c.Request().URL.Path,
			)
			return echo.NewHTTPError(http.StatusForbidden, "Insufficient scope")
		}
	}
}

func getSubjectFromContext(c echo.Context) string {
	subject, ok := c.Get(ctxSubject).(string)
	if !ok {
		return ""
	}
	return subject
}

func getScopeFromContext(c echo.Context) string {
	scope, ok := c.Get(ctxScope).(string)
	if !ok {
		return ""
	}
	return scope
}
