package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/google/uuid"
)

// ErrStopped is returned for connections accepted after Shutdown.
var ErrStopped = errors.New("relay is shutting down")

type viewerRegistry interface {
	Add(v domain.Viewer) bool
	Remove(v domain.Viewer) bool
	CloseAll(reason string) int
}

// Service wires producers to viewers through the renderer and broadcaster.
// Several producers may be open at once; their fragments interleave in
// whatever order their renders complete.
type Service struct {
	renderer    domain.Renderer
	viewers     viewerRegistry
	broadcaster domain.Broadcaster
	metrics     *metrics.RelayMetrics

	mu        sync.Mutex
	producers map[uuid.UUID]domain.ProducerConn
	stopped   bool
}

// NewService creates the relay service. m may be nil.
func NewService(renderer domain.Renderer, viewers viewerRegistry, broadcaster domain.Broadcaster, m *metrics.RelayMetrics) *Service {
	return &Service{
		renderer:    renderer,
		viewers:     viewers,
		broadcaster: broadcaster,
		metrics:     m,
		producers:   make(map[uuid.UUID]domain.ProducerConn),
	}
}

// ServeProducer runs a producer session until the connection ends. Each
// inbound document is rendered and broadcast before the next is read.
// Documents that fail to render are logged and dropped; the session continues.
// A peer close returns nil.
func (s *Service) ServeProducer(ctx context.Context, conn domain.ProducerConn) error {
	if !s.trackProducer(conn) {
		_ = conn.Close(ErrStopped.Error())
		return ErrStopped
	}
	defer func() {
		s.untrackProducer(conn)
		_ = conn.Close("")
	}()

	producerID := conn.ID().String()
	slog.InfoContext(ctx, "Producer connected", "producer_id", producerID)

	for {
		source, err := conn.Receive()
		if err != nil {
			return sessionEnded(ctx, "Producer", "producer_id", producerID, err)
		}
		if s.metrics != nil {
			s.metrics.MessagesReceived.Inc()
		}

		fragment, err := s.renderer.Render(source)
		if err != nil {
			slog.WarnContext(ctx, "Dropping document that failed to render",
				"producer_id", producerID,
				"bytes", len(source),
				"error", err,
			)
			continue
		}

		s.broadcaster.Broadcast(ctx, fragment)
	}
}

// ServeViewer registers conn for broadcasts and blocks until the peer
// disconnects. Inbound frames from viewers are ignored.
func (s *Service) ServeViewer(ctx context.Context, conn domain.ViewerConn) error {
	if !s.addViewer(conn) {
		_ = conn.Close(ErrStopped.Error())
		return ErrStopped
	}

	viewerID := conn.ID().String()
	defer func() {
		s.viewers.Remove(conn)
		_ = conn.Close("")
	}()

	slog.InfoContext(ctx, "Viewer connected", "viewer_id", viewerID)

	for {
		data, err := conn.Receive()
		if err != nil {
			return sessionEnded(ctx, "Viewer", "viewer_id", viewerID, err)
		}
		slog.DebugContext(ctx, "Ignoring frame from viewer", "viewer_id", viewerID, "bytes", len(data))
	}
}

// Shutdown closes every open producer and viewer with reason.
// Connections arriving afterwards are refused with ErrStopped.
func (s *Service) Shutdown(reason string) {
	s.mu.Lock()
	s.stopped = true
	producers := s.producers
	s.producers = make(map[uuid.UUID]domain.ProducerConn)
	s.observeProducers()
	s.mu.Unlock()

	for _, p := range producers {
		_ = p.Close(reason)
	}
	viewers := s.viewers.CloseAll(reason)

	slog.Info("Relay connections closed", "producers", len(producers), "viewers", viewers)
}

// ProducerCount returns the number of open producer sessions.
func (s *Service) ProducerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.producers)
}

func (s *Service) trackProducer(conn domain.ProducerConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.producers[conn.ID()] = conn
	s.observeProducers()
	return true
}

func (s *Service) untrackProducer(conn domain.ProducerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.producers, conn.ID())
	s.observeProducers()
}

// addViewer registers conn unless Shutdown has begun. Holding mu keeps the
// registration from slipping in after CloseAll.
func (s *Service) addViewer(conn domain.ViewerConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.viewers.Add(conn)
	return true
}

// observeProducers must be called with mu held.
func (s *Service) observeProducers() {
	if s.metrics != nil {
		s.metrics.ActiveProducers.Set(float64(len(s.producers)))
	}
}

// sessionEnded logs a clean disconnect under idKey, the same key the connect
// line used, and wraps any other receive error.
func sessionEnded(ctx context.Context, role, idKey, id string, err error) error {
	if errors.Is(err, domain.ErrConnectionClosed) {
		slog.InfoContext(ctx, role+" disconnected", idKey, id)
		return nil
	}
	return fmt.Errorf("%s %s: %w", role, id, err)
}
