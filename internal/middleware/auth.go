package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mooncast/backoffice/internal/auth"
)

const actorKey = "actor"

// BearerAuth validates the Authorization bearer token on every request
// and, on success, stores the actor on the echo context and attributes
// the audit context to them so later writes in the request carry the
// right actor. Every authentication miss maps to 401 with the same
// body; storage failures map to 500.
func BearerAuth(svc *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			token := strings.TrimPrefix(header, "Bearer ")

			actor, err := svc.ValidateToken(c.Request().Context(), token)
			if errors.Is(err, auth.ErrNotAuthenticated) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "authentication unavailable"})
			}

			c.Set(actorKey, actor)
			if ac := AuditContextFrom(c); ac != nil {
				ac.SetActor(actor.ID, actor.Role)
			}
			return next(c)
		}
	}
}

// ActorFrom returns the authenticated actor set by BearerAuth.
func ActorFrom(c echo.Context) (auth.Actor, bool) {
	actor, ok := c.Get(actorKey).(auth.Actor)
	return actor, ok
}

// RequireRole aborts with 403 unless the authenticated actor holds one
// of the given roles. Runs after BearerAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok || !allowed[actor.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
