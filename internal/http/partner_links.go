package http

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/loaninneed/attribution/internal/attribution"
	"github.com/loaninneed/attribution/internal/crypto"
	"github.com/loaninneed/attribution/internal/http/middleware"
)

// issueLinkHandler returns a freshly signed referral URL for the
// authenticated partner.
func issueLinkHandler(issuer *attribution.Issuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		partner, ok := middleware.PartnerFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		link, err := issuer.IssueLink(c.Request().Context(), partner.ID)
		if err != nil {
			switch {
			case errors.Is(err, attribution.ErrPartnerNotFound), errors.Is(err, attribution.ErrNoSecret):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "partner invalid or missing secret key"})
			case errors.Is(err, crypto.ErrCrypto):
				// Partner configuration problem; the partner has to see it.
				return c.JSON(http.StatusConflict, map[string]string{"error": "secret key unusable, contact support"})
			default:
				log.Errorf("issue link failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
		}

		return c.JSON(http.StatusOK, map[string]string{"link": link})
	}
}
