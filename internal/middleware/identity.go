package middleware

import "github.com/labstack/echo/v4"

// CurrentAdmin returns the authenticated administrator's login, or "" on
// public routes.
func CurrentAdmin(c echo.Context) string {
	s, _ := c.Get(ctxSubject).(string)
	return s
}

// callerKey identifies the caller for rate limiting: the admin subject when
// authenticated, otherwise "anon".
func callerKey(c echo.Context) string {
	if s := CurrentAdmin(c); s != "" {
		return s
	}
	return "anon"
}
