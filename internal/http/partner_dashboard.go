package http

import (
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/loaninneed/attribution/internal/http/middleware"
	"github.com/loaninneed/attribution/internal/repository"
)

// partnerDashboardHandler aggregates the partner funnel: clicks and
// conversions from the attribution events read side, customer and loan
// counts from the primary store.
func partnerDashboardHandler(events repository.CHEventsRepository, loans repository.LoansRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		partner, ok := middleware.PartnerFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		clicks, conversions, err := events.PartnerFunnel(c.Request().Context(), partner.ID)
		if err != nil {
			log.Errorf("funnel query failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		totalUsers, err := loans.CountAttributedUsers(c.Request().Context(), partner.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		totalApps, approvedApps, err := loans.CountByAttributedPartner(c.Request().Context(), partner.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"partner": map[string]any{
				"id":     partner.ID,
				"name":   partner.Name,
				"status": partner.Status.String(),
			},
			"stats": map[string]any{
				"total_users":           totalUsers,
				"total_applications":    totalApps,
				"approved_applications": approvedApps,
				"total_clicks":          clicks,
				"total_conversions":     conversions,
				"conversion_rate":       ConversionRate(clicks, conversions),
			},
		})
	}
}

// ConversionRate reports conversions/clicks as a percentage with two
// decimals, "0" when there were no clicks.
func ConversionRate(clicks, conversions int64) string {
	if clicks <= 0 {
		return "0"
	}
	return fmt.Sprintf("%.2f", float64(conversions)/float64(clicks)*100)
}
