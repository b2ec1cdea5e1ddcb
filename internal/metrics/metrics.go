// Package metrics exposes Prometheus collectors for stream, batcher and order activity.
//
// All methods are safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
)

const namespace = "argo_alpaca"

// Metrics groups every collector registered by the bridge.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	StreamErrors     *prometheus.CounterVec
	Reconnects       *prometheus.CounterVec
	ConnectionState  *prometheus.GaugeVec
	Latency          *prometheus.GaugeVec
	MessagesDropped  *prometheus.CounterVec
	BatchesDelivered prometheus.Counter
	BatchFailures    prometheus.Counter
	QueueDepth       prometheus.Gauge
	OrderTransitions *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_received_total",
			Help:      "Inbound stream messages by stream and message tag.",
		}, []string{"stream", "tag"}),
		StreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Stream errors by stream.",
		}, []string{"stream"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Scheduled reconnect attempts by stream.",
		}, []string{"stream"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connection_state",
			Help:      "1 for the current connection state of each stream, 0 otherwise.",
		}, []string{"stream", "state"}),
		Latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_latency_seconds",
			Help:      "Last observed ping round trip by stream.",
		}, []string{"stream"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batcher_messages_dropped_total",
			Help:      "Market messages dropped before delivery, by reason.",
		}, []string{"reason"}),
		BatchesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batcher_batches_delivered_total",
			Help:      "Batches delivered to the notifier.",
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batcher_delivery_failures_total",
			Help:      "Batches requeued after a failed delivery.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batcher_queue_depth",
			Help:      "Messages waiting in the batch queue.",
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status.",
		}, []string{"status"}),
	}

	collectors := []prometheus.Collector{
		m.MessagesReceived, m.StreamErrors, m.Reconnects, m.ConnectionState, m.Latency,
		m.MessagesDropped, m.BatchesDelivered, m.BatchFailures, m.QueueDepth, m.OrderTransitions,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

var allStates = []types.ConnectionState{
	types.ConnectionStateDisconnected,
	types.ConnectionStateConnecting,
	types.ConnectionStateConnected,
	types.ConnectionStateAuthenticated,
	types.ConnectionStateError,
}

func (m *Metrics) MessageReceived(stream types.StreamType, tag string) {
	if m == nil {
		return
	}

	m.MessagesReceived.WithLabelValues(string(stream), tag).Inc()
}

func (m *Metrics) StreamError(stream types.StreamType) {
	if m == nil {
		return
	}

	m.StreamErrors.WithLabelValues(string(stream)).Inc()
}

func (m *Metrics) ReconnectScheduled(stream types.StreamType) {
	if m == nil {
		return
	}

	m.Reconnects.WithLabelValues(string(stream)).Inc()
}

// SetConnectionState flips the state gauge so exactly one state reads 1.
func (m *Metrics) SetConnectionState(stream types.StreamType, state types.ConnectionState) {
	if m == nil {
		return
	}

	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}

		m.ConnectionState.WithLabelValues(string(stream), string(s)).Set(v)
	}
}

func (m *Metrics) ObserveLatency(stream types.StreamType, seconds float64) {
	if m == nil {
		return
	}

	m.Latency.WithLabelValues(string(stream)).Set(seconds)
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}

	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BatchDelivered() {
	if m == nil {
		return
	}

	m.BatchesDelivered.Inc()
}

func (m *Metrics) BatchFailed() {
	if m == nil {
		return
	}

	m.BatchFailures.Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}

	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) OrderTransition(status types.OrderExecutionStatus) {
	if m == nil {
		return
	}

	m.OrderTransitions.WithLabelValues(string(status)).Inc()
}
