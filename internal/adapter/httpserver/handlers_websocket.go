package httpserver

import (
	"log/slog"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/websocket"
	apperrors "github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

// handleProducer accepts an editor connection on the producer channel.
// Once upgraded the handler never returns an error; the response is hijacked.
func (s *Server) handleProducer(c echo.Context) error {
	ctx := c.Request().Context()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.DebugContext(ctx, "Producer upgrade failed", "remote_ip", c.RealIP(), "error", err)
		return nil
	}

	producer := websocket.NewConn(conn, s.clock, s.connOpts)
	if err := s.relay.ServeProducer(ctx, producer); err != nil {
		slog.WarnContext(ctx, "Producer session ended", "producer_id", producer.ID().String(), "error", err)
	}
	return nil
}

// handleViewer accepts a browser connection on the viewer channel, subject
// to the connection limits.
func (s *Server) handleViewer(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		if s.relayMetrics != nil {
			s.relayMetrics.Rejected.WithLabelValues(string(reason)).Inc()
		}
		if reason == LimitReasonGlobal {
			return apperrors.Unavailable("viewer capacity reached").WithField("reason", string(reason))
		}
		return apperrors.TooManyRequests("too many viewer connections").WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.DebugContext(ctx, "Viewer upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	viewer := websocket.NewConn(conn, s.clock, s.connOpts)
	viewer.StartKeepalive()
	if err := s.relay.ServeViewer(ctx, viewer); err != nil {
		slog.WarnContext(ctx, "Viewer session ended", "viewer_id", viewer.ID().String(), "error", err)
	}
	return nil
}
