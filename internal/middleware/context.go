// Package middleware provides shared request processing: audit context
// setup, bearer-token authentication, role checks and rate limiting.
package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/mooncast/backoffice/internal/audit"
)

const auditContextKey = "audit_context"

// AuditContext creates a request-scoped audit context, fills it with
// the request's transport metadata and attaches it to the request's
// context.Context. Must run before any middleware or handler that
// mutates data, so every write in the request is attributable.
func AuditContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ac := audit.NewContext()
			ac.SetRequestMeta(audit.RequestMeta{
				Method:    req.Method,
				Path:      req.URL.Path,
				Query:     req.URL.RawQuery,
				IP:        c.RealIP(),
				UserAgent: req.UserAgent(),
			})
			c.Set(auditContextKey, ac)
			c.SetRequest(req.WithContext(audit.WithContext(req.Context(), ac)))
			return next(c)
		}
	}
}

// AuditContextFrom returns the request's audit context, or nil when the
// AuditContext middleware did not run.
func AuditContextFrom(c echo.Context) *audit.Context {
	ac, _ := c.Get(auditContextKey).(*audit.Context)
	return ac
}
