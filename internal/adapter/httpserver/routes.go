package httpserver

import (
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	apperrors "github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/errors"
	"github.com/gongo/emacs-realtime-markdown-viewer/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	pageRatePerSecond = 10
	pageBurst         = 30
)

func (s *Server) registerRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationMiddleware)
	s.echo.Use(requestLogger(producerPath, viewerPath))
	s.echo.Use(s.httpMetrics.Middleware(producerPath, viewerPath))
	s.echo.Use(apperrors.Middleware(s.httpMetrics.ErrorsTotal))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src * data:; " +
			"connect-src 'self' ws: wss:; " +
			"frame-ancestors 'none'",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))

	pageLimiter := newRateLimiter(pageRatePerSecond, pageBurst, s.httpMetrics.ErrorsTotal)

	s.echo.GET("/", s.handleIndex, pageLimiter)
	s.echo.StaticFS("/static", echo.MustSubFS(web.StaticFiles, "static"))

	s.echo.GET(producerPath, s.handleProducer)
	s.echo.GET(viewerPath, s.handleViewer)

	s.echo.GET("/api/viewers", s.handleViewerCount, pageLimiter)

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))
}
