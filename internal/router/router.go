// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mooncast/backoffice/internal/auth"
	"github.com/mooncast/backoffice/internal/config"
	"github.com/mooncast/backoffice/internal/handler"
	"github.com/mooncast/backoffice/internal/middleware"
)

// Register registers all routes. The audit-context middleware runs
// globally so every request, authenticated or not, carries request
// metadata for the audit trail.
func Register(e *echo.Echo, svc *auth.Service, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	e.Use(middleware.AuditContext())

	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	a := handler.NewAuthHandler(svc)
	inv := handler.NewInvitationHandler(svc)

	// Credential endpoints are throttled; everything else is not.
	g := e.Group("/v1/auth")
	throttle := middleware.LoginThrottle(rlCfg, rdb)
	g.POST("/login", a.Login, throttle)
	g.POST("/refresh", a.Refresh, throttle)
	g.POST("/logout", a.Logout)
	g.POST("/accept-invitation", inv.Accept, throttle)

	protected := e.Group("/v1")
	protected.Use(middleware.BearerAuth(svc))
	protected.GET("/me", a.Me)
	protected.POST("/invitations", inv.Create, middleware.RequireRole("ADMIN"))
}
