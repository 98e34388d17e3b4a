package v1

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/notecrew/ai/observability/logging"
	"github.com/hrygo/notecrew/internal/profile"
)

// HeaderAPIKey carries the client key of /api/v1 requests.
const HeaderAPIKey = "X-API-Key"

// RequestID reuses the caller's X-Request-ID or generates one, echoes it in
// the response and stores it in the request context logger.
func RequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: shortuuid.New,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	})
}

// observe writes the access log and the request counter.
func (s *APIV1Service) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = http.StatusInternalServerError
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		if s.Metrics != nil {
			s.Metrics.RecordHTTPRequest(c.Request().Method, path, status)
		}

		logging.FromContext(c.Request().Context()).Info("http request",
			"method", c.Request().Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_ip", c.RealIP(),
		)
		return err
	}
}

// APIKeyAuth checks X-API-Key against the configured keys. Development
// instances without keys skip the check.
func APIKeyAuth(p *profile.Profile) echo.MiddlewareFunc {
	var keys []string
	required := true
	if p != nil {
		keys = p.APIKeys
		required = p.AuthRequired()
	}

	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:" + HeaderAPIKey,
		Skipper: func(echo.Context) bool {
			return !required
		},
		Validator: func(key string, _ echo.Context) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
					return true, nil
				}
			}
			return false, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			logging.FromContext(c.Request().Context()).Warn("api key rejected", "path", c.Path(), "error", err)
			return c.JSON(http.StatusUnauthorized, ErrorDetail{
				Code:      http.StatusUnauthorized,
				Message:   "invalid or missing API key",
				RequestID: requestID(c),
			})
		},
	})
}
