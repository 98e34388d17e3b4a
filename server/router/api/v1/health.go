package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/notecrew/internal/version"
)

const readinessTimeout = 3 * time.Second

// Live handles GET /health/live.
func (s *APIV1Service) Live(c echo.Context) error {
	mode := ""
	if s.Profile != nil {
		mode = s.Profile.Mode
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Current(mode),
	})
}

// Ready handles GET /health/ready. Every readiness check must pass.
func (s *APIV1Service) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(s.Readiness))
	ready := true
	for _, rc := range s.Readiness {
		if err := rc.Check(ctx); err != nil {
			checks[rc.Name] = err.Error()
			ready = false
			continue
		}
		checks[rc.Name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !ready {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
