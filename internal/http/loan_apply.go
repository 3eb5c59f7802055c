package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/loaninneed/attribution/internal/attribution"
	"github.com/loaninneed/attribution/internal/http/middleware"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
	"github.com/loaninneed/attribution/internal/util"
)

type applyReq struct {
	Amount int64 `json:"amount"`
}

// loanApplyHandler is conversion point two: the application row is stamped
// with whatever attribution is authoritative at submission time.
func loanApplyHandler(loans repository.LoansRepository, attrSvc *attribution.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, ok := middleware.UserFromCtx(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req applyReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if req.Amount <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid amount"})
		}

		var (
			partnerID *int64
			source    *string
		)
		switch {
		case user.Attributed():
			partnerID = user.AttributedPartnerID
			src := string(model.AttributionExistingLock)
			if user.AttributionType != nil {
				src = string(*user.AttributionType)
			}
			source = &src
		default:
			if assertion, ok := middleware.AssertionFromCtx(c); ok {
				pid, err := attrSvc.Lock(c.Request().Context(), user, assertion, model.ReasonLoanApplication)
				if err != nil {
					log.Errorf("attribution lock failed for user %d: %v", user.ID, err)
				}
				if pid != nil {
					partnerID = pid
					src := string(model.AttributionOnlineLink)
					source = &src
				}
			}
		}

		loan := model.LoanApplication{
			ID:                  util.NewULID(),
			UserID:              user.ID,
			Amount:              req.Amount,
			Status:              model.LoanPending,
			AttributedPartnerID: partnerID,
			AttributionSource:   source,
		}
		if err := loans.Insert(c.Request().Context(), loan); err != nil {
			log.Errorf("loan insert failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		attributionLabel := "Organic"
		if partnerID != nil {
			attributionLabel = "Partner"
		}
		return c.JSON(http.StatusCreated, map[string]any{
			"application_id": loan.ID,
			"attribution":    attributionLabel,
		})
	}
}
