package broadcast

import (
	"context"
	"log/slog"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/domain"
	"github.com/jonboulle/clockwork"
)

const evictReason = "send failed"

// Broadcaster writes rendered fragments to every viewer in a Registry.
type Broadcaster struct {
	registry *Registry
	clock    clockwork.Clock
	metrics  *metrics.RelayMetrics
}

// NewBroadcaster creates a broadcaster over registry. m may be nil.
func NewBroadcaster(registry *Registry, clock clockwork.Clock, m *metrics.RelayMetrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		clock:    clock,
		metrics:  m,
	}
}

// Broadcast sends fragment to each viewer registered at call time and returns
// how many writes succeeded. A failed write evicts and closes that viewer
// without affecting delivery to the others.
func (b *Broadcaster) Broadcast(ctx context.Context, fragment domain.Fragment) int {
	start := b.clock.Now()
	viewers := b.registry.Snapshot()

	delivered := 0
	for _, v := range viewers {
		if err := v.Send(fragment); err != nil {
			b.evict(ctx, v, err)
			continue
		}
		delivered++
	}

	if b.metrics != nil {
		b.metrics.FragmentsBroadcast.Inc()
		b.metrics.Deliveries.Add(float64(delivered))
		b.metrics.BroadcastDuration.Observe(b.clock.Since(start).Seconds())
	}

	slog.DebugContext(ctx, "Fragment broadcast",
		"bytes", len(fragment),
		"viewers", len(viewers),
		"delivered", delivered,
	)
	return delivered
}

func (b *Broadcaster) evict(ctx context.Context, v domain.Viewer, err error) {
	if b.metrics != nil {
		b.metrics.SendFailures.Inc()
	}

	// The viewer's own read loop may already have removed it.
	if b.registry.Remove(v) {
		slog.WarnContext(ctx, "Evicting viewer after failed send", "viewer_id", v.ID().String(), "error", err)
	}
	_ = v.Close(evictReason)
}
