package ratelimitmw

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/bi_dashboard/internal/logging"
	"github.com/Skotchmaster/bi_dashboard/internal/ratelimit"
)

const loginLimitedMessage = "Too many login attempts, please try again later"

// Login limits attempts per client IP. The check runs before the handler, so a
// blocked attempt never reaches credential verification. Limiter errors fail open.
func Login(l ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ip := c.RealIP()

			d, err := l.Allow(ctx, ip)
			if err != nil {
				logging.FromContext(ctx).Error("rate_limit_error", "error", err)
				return next(c)
			}

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				logging.FromContext(ctx).Warn("login_rate_limited", "status", 429, "retry_after_s", secs)
				return echo.NewHTTPError(http.StatusTooManyRequests, loginLimitedMessage)
			}

			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			return next(c)
		}
	}
}
