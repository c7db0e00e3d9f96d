package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/app"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/broadcast"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/config"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/render"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type testEnv struct {
	server       *Server
	http         *httptest.Server
	service      *app.Service
	registry     *broadcast.Registry
	relayMetrics *metrics.RelayMetrics
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		Port:                    "0",
		AppURL:                  "http://localhost:8080",
		WSWriteTimeout:          time.Second,
		WSPingInterval:          time.Minute,
		WSMaxMessageBytes:       1 << 16,
		MaxViewerConnections:    100,
		MaxConnectionsPerIP:     100,
		ConnectionRatePerSecond: 1000,
		ConnectionBurst:         1000,
		ShutdownTimeout:         time.Second,
	}
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	reg := prometheus.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)
	registry := broadcast.NewRegistry(relayMetrics)
	broadcaster := broadcast.NewBroadcaster(registry, clockwork.NewRealClock(), relayMetrics)
	renderer := render.NewRenderer(render.DefaultOptions(), nil)
	service := app.NewService(renderer, registry, broadcaster, relayMetrics)

	srv, err := NewServer(cfg, service, registry, clockwork.NewRealClock(), reg, relayMetrics, []HealthCheck{
		{Name: "renderer", Check: func(context.Context) error { return nil }},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		service.Shutdown("test finished")
		ts.Close()
	})

	return &testEnv{
		server:       srv,
		http:         ts,
		service:      service,
		registry:     registry,
		relayMetrics: relayMetrics,
	}
}

func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + path
}

func (e *testEnv) dial(t *testing.T, path string) *ws.Conn {
	t.Helper()
	conn, resp, err := ws.DefaultDialer.Dial(e.wsURL(path), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// dialRejected dials path expecting the handshake to fail and returns the HTTP status.
func (e *testEnv) dialRejected(t *testing.T, path string, header http.Header) int {
	t.Helper()
	conn, resp, err := ws.DefaultDialer.Dial(e.wsURL(path), header)
	if conn != nil {
		_ = conn.Close()
	}
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func (e *testEnv) waitViewers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.registry.Len() == n }, waitFor, 5*time.Millisecond)
}

func (e *testEnv) get(t *testing.T, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func send(t *testing.T, conn *ws.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(text)))
}

func receive(t *testing.T, conn *ws.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, ws.TextMessage, msgType)
	return string(data)
}
