package middleware

import (
	echo "github.com/labstack/echo/v4"
	"github.com/loaninneed/attribution/internal/attribution"
	"github.com/loaninneed/attribution/internal/model"
)

// AssertionFromCtx extracts the attribution assertion produced for this
// request, if the gate validated one.
func AssertionFromCtx(c echo.Context) (*model.Assertion, bool) {
	v := c.Get("attribution")
	a, ok := v.(*model.Assertion)
	return a, ok
}

// AttributionMiddleware inspects ?pid=&ts=&sig= on every request and stashes
// a validated assertion in context. It never blocks the request: missing
// parameters, stale timestamps, unknown partners, and bad signatures all
// fall through to the handler unattributed.
func AttributionMiddleware(svc *attribution.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			params := attribution.Params{
				PID: c.QueryParam("pid"),
				TS:  c.QueryParam("ts"),
				Sig: c.QueryParam("sig"),
			}
			authed, _ := UserFromCtx(c)

			if a := svc.ValidateRequest(c.Request().Context(), params, authed); a != nil {
				c.Set("attribution", a)
			}
			return next(c)
		}
	}
}
