// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/document-access-gate/internal/handler"
	"github.com/iliyamo/document-access-gate/internal/middleware"
	"github.com/iliyamo/document-access-gate/internal/utils"
)

// RegisterRoutes registers unauthenticated infrastructure routes.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterVisitor registers the link-driven entry points.  GET / dispatches
// on query keys; the explicit paths are equivalent.  All of them sit behind
// the visitor rate limiter.
func RegisterVisitor(e *echo.Echo, v *handler.VisitorHandler, limit echo.MiddlewareFunc) {
	g := e.Group("", limit)
	g.GET("/", v.Entry)
	g.GET("/download", v.Download)
	g.GET("/action-link", v.ActionLink)
	g.GET("/viewer", v.Viewer)
	g.GET("/viewer/file", v.ViewerFile)
}

// RegisterPublic registers document metadata and request submission.
// Metadata responses go through the Redis cache.
func RegisterPublic(e *echo.Echo, d *handler.DocumentHandler, cache, limit echo.MiddlewareFunc) {
	e.GET("/v1/documents/:id", d.Get, cache)
	e.POST("/v1/documents/:id/requests", d.Submit, limit)
}

// RegisterAdmin registers the login endpoint and the ADMIN-only API.
func RegisterAdmin(e *echo.Echo, a *handler.AuthHandler, r *handler.AdminRequestHandler, d *handler.DocumentHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/v1/admin/login", a.Login, limit)

	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleAdmin),
	)
	g.GET("/requests", r.List)
	g.GET("/requests/:id", r.Get)
	g.POST("/requests/:id/status", r.SetStatus)
	g.DELETE("/requests/:id", r.Delete)
	g.POST("/requests/:id/action-link", r.IssueActionLink)
	g.POST("/documents", d.Create)
}
