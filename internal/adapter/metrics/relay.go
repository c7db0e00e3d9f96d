package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for producer and viewer connections
// and the broadcast fan-out.
type RelayMetrics struct {
	ActiveViewers      prometheus.Gauge
	ActiveProducers    prometheus.Gauge
	MessagesReceived   prometheus.Counter
	FragmentsBroadcast prometheus.Counter
	Deliveries         prometheus.Counter
	SendFailures       prometheus.Counter
	BroadcastDuration  prometheus.Histogram
	Rejected           *prometheus.CounterVec
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_viewers",
			Help:      "Number of viewer connections currently registered.",
		}),
		ActiveProducers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_producers",
			Help:      "Number of open producer connections.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "producer_messages_total",
			Help:      "Total number of documents received from producers.",
		}),
		FragmentsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "fragments_broadcast_total",
			Help:      "Total number of rendered fragments broadcast.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Total number of fragments written to viewers.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "send_failures_total",
			Help:      "Total number of failed viewer writes (each evicts the viewer).",
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcast_duration_seconds",
			Help:      "Time spent fanning one fragment out to all viewers.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_connections_total",
			Help:      "Viewer connections refused before upgrade, by limit.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.ActiveViewers,
		m.ActiveProducers,
		m.MessagesReceived,
		m.FragmentsBroadcast,
		m.Deliveries,
		m.SendFailures,
		m.BroadcastDuration,
		m.Rejected,
	)
	return m
}
