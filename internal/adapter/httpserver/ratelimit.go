package httpserver

import (
	"time"

	apperrors "github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits plain HTTP requests per client IP. Echo hands the
// deny handler's error straight to its HTTP error handler, so the 429 is
// written and counted here. errorsTotal may be nil.
func newRateLimiter(ratePerSecond float64, burst int, errorsTotal *prometheus.CounterVec) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperrors.Respond(c, errorsTotal, apperrors.TooManyRequests("rate limit exceeded"))
		},
	})
}
