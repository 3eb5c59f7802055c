package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/loaninneed/attribution/internal/attribution"
	"github.com/loaninneed/attribution/internal/auth"
	"github.com/loaninneed/attribution/internal/http/middleware"
	"github.com/loaninneed/attribution/internal/model"
	"github.com/loaninneed/attribution/internal/repository"
)

type verifyOTPReq struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// verifyOTPHandler is conversion point one: first OTP verification creates
// the customer record, and any assertion riding on the request gets locked.
func verifyOTPHandler(
	otp auth.OTPVerifier,
	sessions auth.TokenIssuer,
	users repository.UsersRepository,
	attrSvc *attribution.Service,
) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req verifyOTPReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		req.Phone = strings.TrimSpace(req.Phone)
		req.Code = strings.TrimSpace(req.Code)
		if req.Phone == "" || req.Code == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		ok, err := otp.Verify(c.Request().Context(), req.Phone, req.Code)
		if err != nil {
			log.Errorf("otp verify failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "otp error"})
		}
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid code"})
		}

		user, err := users.GetByPhone(c.Request().Context(), req.Phone)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		created := false
		if user == nil {
			u := &model.User{Phone: req.Phone}
			id, err := users.Insert(c.Request().Context(), u)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			u.ID = id
			user = u
			created = true
		}

		// First-touch-wins: a pre-existing lock makes this a no-op.
		assertion, _ := middleware.AssertionFromCtx(c)
		pid, err := attrSvc.Lock(c.Request().Context(), user, assertion, model.ReasonRegistration)
		if err != nil {
			// Attribution must never fail registration.
			log.Errorf("attribution lock failed for user %d: %v", user.ID, err)
		}

		token, err := sessions.Issue(c.Request().Context(), user.ID)
		if err != nil {
			log.Errorf("session issue failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
		}

		resp := map[string]any{
			"token":   token,
			"user_id": user.ID,
			"created": created,
		}
		if pid != nil {
			resp["attributed_partner_id"] = *pid
		}
		return c.JSON(http.StatusOK, resp)
	}
}
