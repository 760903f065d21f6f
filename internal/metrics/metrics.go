// Package metrics exposes conntrack's Prometheus metrics.
//
// The metrics track:
//   - Tracked connections per status, read from the tracker at scrape time
//   - Heartbeats by ingestion source and outcome, and their one-way latency
//   - Open heartbeat streams
//   - Sweep evictions and sweep duration
//   - Status API requests by method, route and status code
//
// Usage:
//
//	m := metrics.NewMetrics(prometheus.NewRegistry(), "conntrack", tracker)
//	m.HeartbeatReceived(metrics.SourceREST, metrics.ResultAccepted)
//	m.ObserveSweep(evicted, time.Since(start))
package metrics

import (
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Heartbeat sources.
const (
	SourceREST      = "rest"
	SourceMQTT      = "mqtt"
	SourceWebSocket = "websocket"
)

// Heartbeat results.
const (
	ResultAccepted  = "accepted"
	ResultMalformed = "malformed"
	ResultUnknown   = "unknown"
)

// StatusCounter reports how many connections are tracked per status.
type StatusCounter interface {
	Counts() map[constants.ConnectionStatus]int
}

// Metrics holds every conntrack metric. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HeartbeatCounter counts heartbeats.
	// Labels: source (rest|mqtt|websocket), result (accepted|malformed|unknown)
	HeartbeatCounter *prometheus.CounterVec

	// HeartbeatLatency is the one-way delay between the sender timestamp and receipt.
	HeartbeatLatency prometheus.Histogram

	// HeartbeatStreamsOpen is the number of open WebSocket heartbeat streams.
	HeartbeatStreamsOpen prometheus.Gauge

	// SweepEvictions counts connections removed by the sweeper.
	SweepEvictions prometheus.Counter

	// SweepDuration measures a full sweep pass.
	SweepDuration prometheus.Histogram

	// HTTPRequestCounter counts Status API requests.
	// Labels: method, route, code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures Status API request latency.
	// Labels: method, route
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them, together with a collector for the
// tracked connection gauge and the Go and process collectors, on registerer.
// It panics if any of them is already registered there.
func NewMetrics(registerer prometheus.Registerer, namespace string, counter StatusCounter) *Metrics {
	factory := promauto.With(registerer)

	m := &Metrics{
		HeartbeatCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeats_total",
				Help:      "Total number of heartbeats by ingestion source and result",
			},
			[]string{"source", "result"},
		),

		HeartbeatLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "heartbeat_latency_seconds",
				Help:      "One-way heartbeat latency between sender timestamp and receipt",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		HeartbeatStreamsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "heartbeat_streams_open",
				Help:      "Number of open WebSocket heartbeat streams",
			},
		),

		SweepEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_evictions_total",
				Help:      "Total number of connections removed by the sweeper",
			},
		),

		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of sweep passes in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of Status API requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of Status API requests in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route"},
		),
	}

	registerer.MustRegister(
		newTrackedCollector(namespace, counter),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
	return m
}

// HeartbeatReceived counts one heartbeat from source with the given result.
func (m *Metrics) HeartbeatReceived(source, result string) {
	if m == nil {
		return
	}
	m.HeartbeatCounter.WithLabelValues(source, result).Inc()
}

// ObserveLatency records the latency of an accepted heartbeat.
func (m *Metrics) ObserveLatency(latency time.Duration) {
	if m == nil {
		return
	}
	m.HeartbeatLatency.Observe(latency.Seconds())
}

// StreamOpened counts a heartbeat stream as open.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.HeartbeatStreamsOpen.Inc()
}

// StreamClosed counts a heartbeat stream as closed.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.HeartbeatStreamsOpen.Dec()
}

// ObserveSweep records one sweep pass.
func (m *Metrics) ObserveSweep(evicted int, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepEvictions.Add(float64(evicted))
	m.SweepDuration.Observe(took.Seconds())
}

// ObserveRequest records one Status API request.
func (m *Metrics) ObserveRequest(method, route, code string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
