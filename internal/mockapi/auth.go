package mockapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const userContextKey = "user"

// AuthMiddleware resolves the bearer token to a user.
// A missing token is 401; a token the server never issued is 403.
func AuthMiddleware(s *Server) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			token := ""
			if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 {
				token = strings.TrimSpace(parts[1])
			}
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Access token required"})
			}

			user, ok := s.store.authenticate(token)
			if !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"message": "Invalid token"})
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}

// currentUser returns the user set by AuthMiddleware.
func currentUser(c echo.Context) *User {
	u, _ := c.Get(userContextKey).(*User)
	return u
}
