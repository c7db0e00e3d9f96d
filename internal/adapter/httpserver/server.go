package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/websocket"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/config"
	"github.com/gongo/emacs-realtime-markdown-viewer/web"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

const (
	producerPath = "/emacs"
	viewerPath   = "/markdown"
)

type relayService interface {
	ServeProducer(ctx context.Context, conn domain.ProducerConn) error
	ServeViewer(ctx context.Context, conn domain.ViewerConn) error
}

type viewerCounter interface {
	Len() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	relay    relayService
	viewers  viewerCounter
	upgrader *ws.Upgrader
	connOpts websocket.Options
	limits   *ConnectionLimits

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	relayMetrics *metrics.RelayMetrics

	templates    *template.Template
	healthChecks []HealthCheck
	readiness    singleflight.Group
	startTime    time.Time
}

// NewServer builds the HTTP server. relayMetrics may be nil; HTTP metrics are
// registered on reg and served from /metrics.
func NewServer(cfg *config.Config, relay relayService, viewers viewerCounter, clock clockwork.Clock, reg *prometheus.Registry, relayMetrics *metrics.RelayMetrics, healthChecks []HealthCheck) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		clock:    clock,
		relay:    relay,
		viewers:  viewers,
		upgrader: websocket.NewUpgrader(websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment())),
		connOpts: websocket.Options{
			WriteTimeout:    cfg.WSWriteTimeout,
			PingInterval:    cfg.WSPingInterval,
			MaxMessageBytes: cfg.WSMaxMessageBytes,
		},
		limits:       NewConnectionLimits(clock, cfg.MaxViewerConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerSecond, cfg.ConnectionBurst),
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		relayMetrics: relayMetrics,
		templates:    templates,
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Upgraded websocket connections are not
// tracked by the HTTP server and must be closed by the relay.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, for embedding in another server or tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.ErrorContext(c.Request().Context(), "Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(http.StatusOK, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

// viewerURL returns the websocket URL browsers should dial, as seen by the client.
func viewerURL(c echo.Context) string {
	scheme := "ws"
	if c.Request().TLS != nil {
		scheme = "wss"
	}
	switch c.Request().Header.Get("X-Forwarded-Proto") {
	case "https":
		scheme = "wss"
	case "http":
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request().Host, viewerPath)
}
