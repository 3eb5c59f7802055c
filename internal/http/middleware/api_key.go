package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
)

// PartnerFromCtx extracts the authenticated partner set by PartnerKeyMiddleware.
func PartnerFromCtx(c echo.Context) (*model.Partner, bool) {
	v := c.Get("partner")
	p, ok := v.(*model.Partner)
	return p, ok
}

// PartnerKeyMiddleware authenticates partner-facing requests using the
// X-API-Key header. Only ACTIVE partners pass.
func PartnerKeyMiddleware(partners repository.PartnersRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			p, err := partners.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if p == nil || p.Status != model.PartnerActive {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set("partner", p)
			c.Set("partner_id", p.ID)
			return next(c)
		}
	}
}
