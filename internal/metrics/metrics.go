package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons reported by the relay.
const (
	DropMalformed     = "malformed"
	DropNotJoined     = "not_joined"
	DropRejoin        = "rejoin"
	DropUnknownTarget = "unknown_target"
	DropCrossRoom     = "cross_room"
	DropSelfTarget    = "self_target"
	DropBufferFull    = "buffer_full"
)

const namespace = "signaling"

// Metrics holds the relay's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	envelopes   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	delivered   prometheus.Counter
}

// New creates the relay collectors on a private registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live signaling connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one joined peer.",
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_total",
			Help:      "Inbound envelopes accepted by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Envelopes or frames dropped by reason.",
		}, []string{"reason"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_total",
			Help:      "Frames queued to a peer.",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.rooms,
		m.envelopes,
		m.dropped,
		m.delivered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Metrics) Envelope(kind string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(kind).Inc()
}

func (m *Metrics) Drop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Delivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
