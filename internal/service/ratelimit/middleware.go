package ratelimit

import (
	xhttp "Overlord/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests over the limit with 429, keyed by client IP.
func Middleware(l *Limiter, onReject func(ip string)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !l.Allow(ip) {
				if onReject != nil {
					onReject(ip)
				}
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError())
			}
			return next(c)
		}
	}
}
