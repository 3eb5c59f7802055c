package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/loaninneed/attribution/internal/auth"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
)

// UserFromCtx extracts the authenticated customer, if any.
func UserFromCtx(c echo.Context) (*model.User, bool) {
	v := c.Get("user")
	u, ok := v.(*model.User)
	return u, ok
}

// SessionMiddleware resolves an optional Bearer token to a customer and
// stores it in context. Anonymous requests pass through untouched; only a
// present-but-invalid token is rejected.
func SessionMiddleware(verifier auth.TokenVerifier, users repository.UsersRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := strings.TrimSpace(c.Request().Header.Get("Authorization"))
			if raw == "" {
				return next(c)
			}
			token := strings.TrimPrefix(raw, "Bearer ")

			id, err := verifier.Verify(c.Request().Context(), token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			u, err := users.GetByID(c.Request().Context(), id)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if u == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			}
			c.Set("user", u)
			return next(c)
		}
	}
}

// RequireUser gates handlers that need an authenticated customer.
func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := UserFromCtx(c); !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		return next(c)
	}
}
