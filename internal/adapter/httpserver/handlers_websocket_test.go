package httpserver

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/config"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	viewerA := env.dial(t, viewerPath)
	env.waitViewers(t, 1)

	producer := env.dial(t, producerPath)
	send(t, producer, "# Hi")
	assert.Equal(t, "<h1>Hi</h1>\n", receive(t, viewerA))

	viewerB := env.dial(t, viewerPath)
	env.waitViewers(t, 2)

	send(t, producer, "# Hi")
	assert.Equal(t, "<h1>Hi</h1>\n", receive(t, viewerA))
	assert.Equal(t, "<h1>Hi</h1>\n", receive(t, viewerB))

	require.NoError(t, viewerA.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))
	env.waitViewers(t, 1)

	send(t, producer, "text")
	assert.Equal(t, "<p>text</p>\n", receive(t, viewerB))
}

func TestRelay_ProducerGetsNoFrames(t *testing.T) {
	env := newTestEnv(t)

	producer := env.dial(t, producerPath)
	viewer := env.dial(t, viewerPath)
	env.waitViewers(t, 1)

	send(t, producer, "*hello*")
	assert.Equal(t, "<p><em>hello</em></p>\n", receive(t, viewer))

	require.NoError(t, producer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := producer.ReadMessage()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestRelay_OrderPreserved(t *testing.T) {
	env := newTestEnv(t)

	viewer := env.dial(t, viewerPath)
	env.waitViewers(t, 1)
	producer := env.dial(t, producerPath)

	for _, word := range []string{"one", "two", "three"} {
		send(t, producer, word)
	}
	for _, word := range []string{"one", "two", "three"} {
		assert.Equal(t, "<p>"+word+"</p>\n", receive(t, viewer))
	}
}

func TestRelay_InvalidDocumentKeepsProducerOpen(t *testing.T) {
	env := newTestEnv(t)

	viewer := env.dial(t, viewerPath)
	env.waitViewers(t, 1)
	producer := env.dial(t, producerPath)

	require.NoError(t, producer.WriteMessage(ws.BinaryMessage, []byte{0xff, 0xfe, 0xfd}))
	send(t, producer, "still here")

	assert.Equal(t, "<p>still here</p>\n", receive(t, viewer))
	assert.Equal(t, 1, env.service.ProducerCount())
}

func TestRelay_ConcurrentProducers(t *testing.T) {
	env := newTestEnv(t)

	viewer := env.dial(t, viewerPath)
	env.waitViewers(t, 1)

	first := env.dial(t, producerPath)
	second := env.dial(t, producerPath)

	send(t, first, "from first")
	assert.Equal(t, "<p>from first</p>\n", receive(t, viewer))
	send(t, second, "from second")
	assert.Equal(t, "<p>from second</p>\n", receive(t, viewer))
}

func TestRelay_OversizedFrameClosesProducer(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.WSMaxMessageBytes = 64 })

	producer := env.dial(t, producerPath)
	send(t, producer, strings.Repeat("a", 128))

	require.NoError(t, producer.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := producer.ReadMessage()
	require.Error(t, err)
	assert.Eventually(t, func() bool { return env.service.ProducerCount() == 0 }, waitFor, 5*time.Millisecond)
}

func TestRelay_ViewerFramesIgnored(t *testing.T) {
	env := newTestEnv(t)

	viewer := env.dial(t, viewerPath)
	env.waitViewers(t, 1)
	send(t, viewer, "ignored")

	producer := env.dial(t, producerPath)
	send(t, producer, "shown")

	assert.Equal(t, "<p>shown</p>\n", receive(t, viewer))
	assert.Equal(t, 1, env.registry.Len())
}

func TestRelay_ShutdownClosesViewers(t *testing.T) {
	env := newTestEnv(t)

	viewer := env.dial(t, viewerPath)
	env.waitViewers(t, 1)

	env.service.Shutdown("server shutting down")

	require.NoError(t, viewer.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := viewer.ReadMessage()
	var closeErr *ws.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
	assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "server shutting down", closeErr.Text)
	assert.Equal(t, 0, env.registry.Len())
}

func TestHandleViewer_PerIPLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.MaxConnectionsPerIP = 1 })

	env.dial(t, viewerPath)
	env.waitViewers(t, 1)

	assert.Equal(t, http.StatusTooManyRequests, env.dialRejected(t, viewerPath, nil))
	assert.InDelta(t, 1, testutil.ToFloat64(env.relayMetrics.Rejected.WithLabelValues(string(LimitReasonPerIP))), 0)
}

func TestHandleViewer_GlobalLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.MaxViewerConnections = 1 })

	env.dial(t, viewerPath)
	env.waitViewers(t, 1)

	assert.Equal(t, http.StatusServiceUnavailable, env.dialRejected(t, viewerPath, nil))
}

func TestHandleViewer_RateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.ConnectionRatePerSecond = 0.001
		cfg.ConnectionBurst = 1
	})

	env.dial(t, viewerPath)

	assert.Equal(t, http.StatusTooManyRequests, env.dialRejected(t, viewerPath, nil))
}

func TestHandleViewer_SlotReleasedOnDisconnect(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.MaxConnectionsPerIP = 1 })

	first := env.dial(t, viewerPath)
	env.waitViewers(t, 1)
	require.NoError(t, first.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))
	env.waitViewers(t, 0)

	require.Eventually(t, func() bool { return env.server.limits.Current() == 0 }, waitFor, 5*time.Millisecond)
	env.dial(t, viewerPath)
	env.waitViewers(t, 1)
}

func TestHandleViewer_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	assert.Equal(t, http.StatusForbidden, env.dialRejected(t, viewerPath, header))
	assert.Equal(t, 0, env.registry.Len())
}
