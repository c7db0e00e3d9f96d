package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/version"
	"github.com/labstack/echo/v4"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named readiness check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

type readinessResult struct {
	failedCheck string
	err         error
}

// runHealthChecks stops at the first failing check. Concurrent probes share one run.
func (s *Server) runHealthChecks(ctx context.Context) readinessResult {
	v, _, _ := s.readiness.Do("ready", func() (any, error) {
		for _, hc := range s.healthChecks {
			if err := hc.Check(ctx); err != nil {
				return readinessResult{failedCheck: hc.Name, err: err}, nil
			}
		}
		return readinessResult{}, nil
	})
	return v.(readinessResult)
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	if result := s.runHealthChecks(ctx); result.err != nil {
		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": result.failedCheck,
			"error":        result.err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]any{"status": "ready", "viewers": s.viewers.Len()}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
