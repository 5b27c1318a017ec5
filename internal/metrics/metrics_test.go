package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.SetConnections(3)
	m.SetRooms(1)
	m.Envelope("join-room")
	m.Envelope("join-room")
	m.Drop(DropCrossRoom)
	m.Delivered()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rooms))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.envelopes.WithLabelValues("join-room")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues(DropCrossRoom)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.delivered))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetConnections(1)
		m.SetRooms(1)
		m.Envelope("signal-offer")
		m.Drop(DropMalformed)
		m.Delivered()
	})
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.Drop(DropUnknownTarget)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `signaling_dropped_total{reason="unknown_target"} 1`)
	assert.Contains(t, string(body), "signaling_connections 0")
}
