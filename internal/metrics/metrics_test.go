package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounts map[constants.ConnectionStatus]int

func (s staticCounts) Counts() map[constants.ConnectionStatus]int { return s }

func TestTrackedConnectionsGauge(t *testing.T) {
	counts := staticCounts{constants.StatusConnecting: 1, constants.StatusAlive: 3}
	collector := newTrackedCollector("test", counts)

	expected := `
		# HELP test_tracked_connections Number of tracked connections by status
		# TYPE test_tracked_connections gauge
		test_tracked_connections{status="alive"} 3
		test_tracked_connections{status="connecting"} 1
		test_tracked_connections{status="stale"} 0
	`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected)))

	counts[constants.StatusStale] = 2
	assert.Equal(t, 3, testutil.CollectAndCount(collector))
}

func TestHeartbeatReceived(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test", staticCounts{})

	m.HeartbeatReceived(SourceREST, ResultAccepted)
	m.HeartbeatReceived(SourceREST, ResultAccepted)
	m.HeartbeatReceived(SourceMQTT, ResultMalformed)

	expected := `
		# HELP test_heartbeats_total Total number of heartbeats by ingestion source and result
		# TYPE test_heartbeats_total counter
		test_heartbeats_total{result="accepted",source="rest"} 2
		test_heartbeats_total{result="malformed",source="mqtt"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(m.HeartbeatCounter, strings.NewReader(expected)))
}

func TestObserveSweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test", staticCounts{})

	m.ObserveSweep(2, time.Millisecond)
	m.ObserveSweep(0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweepEvictions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SweepDuration))
}

func TestObserveRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test", staticCounts{})

	m.ObserveRequest("GET", "/connections/{id}", "404", 2*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestCounter.WithLabelValues("GET", "/connections/{id}", "404")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.HeartbeatReceived(SourceWebSocket, ResultUnknown)
		m.ObserveLatency(time.Second)
		m.ObserveSweep(1, time.Second)
		m.ObserveRequest("GET", "/health", "200", time.Second)
	})
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry, "test", staticCounts{})

	assert.Panics(t, func() { NewMetrics(registry, "test", staticCounts{}) })
}
