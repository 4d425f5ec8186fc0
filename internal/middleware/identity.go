package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
	ctxEmail  = "email"
)

// UserID returns the authenticated subject, or "" for anonymous requests.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Role returns the role claim of the authenticated user.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

// Email returns the email claim of the authenticated user.
func Email(c echo.Context) string {
	s, _ := c.Get(ctxEmail).(string)
	return s
}
