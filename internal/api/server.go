// Package api implements the Status API: the REST surface over the connection tracker.
package api

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/metrics"
	"github.com/benmeehan/irc-conntrack/internal/metrics_collectors"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Config holds the dependencies of a Server. Only Tracker is required.
type Config struct {
	Tracker tracker.ConnectionTracker
	Logger  zerolog.Logger

	// Metrics records request and heartbeat metrics when set.
	Metrics *metrics.Metrics
	// Gatherer is served on /metrics when set.
	Gatherer prometheus.Gatherer

	// Collectors and Process drive the process section of /health.
	Collectors *metrics_collectors.MetricsRegistry
	Process    *models.ProcessConfig

	// Settings serves GET /config and POST /config/reload when set.
	Settings ConfigSource

	// MaxStreams caps concurrent heartbeat streams, 0 for no limit.
	MaxStreams int
	// AllowedOrigins lists browser origins allowed to open streams besides the
	// API's own. "*" allows any origin.
	AllowedOrigins []string

	// StreamCheckInterval overrides constants.StreamCheckInterval.
	StreamCheckInterval time.Duration
	// Clock overrides time.Now.
	Clock func() time.Time
}

// ConfigSource exposes the effective configuration and reloads it.
type ConfigSource interface {
	Current() utils.Config
	Reload() (utils.Config, error)
}

// Server translates REST calls into tracker operations.
type Server struct {
	tracker    tracker.ConnectionTracker
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	collectors *metrics_collectors.MetricsRegistry
	process    *models.ProcessConfig
	settings   ConfigSource
	logger     zerolog.Logger

	streamCheckInterval time.Duration
	upgrader            websocket.Upgrader
	allowedOrigins      utils.Set[string]
	maxStreams          int64
	openStreams         atomic.Int64

	streamsMu     sync.Mutex
	streams       map[*websocket.Conn]struct{}
	streamsClosed bool

	clock     func() time.Time
	startedAt time.Time
}

// NewServer creates a Server from config.
func NewServer(config Config) *Server {
	s := &Server{
		tracker:             config.Tracker,
		metrics:             config.Metrics,
		gatherer:            config.Gatherer,
		collectors:          config.Collectors,
		process:             config.Process,
		settings:            config.Settings,
		logger:              config.Logger,
		streamCheckInterval: config.StreamCheckInterval,
		allowedOrigins:      utils.NewSet(config.AllowedOrigins...),
		maxStreams:          int64(config.MaxStreams),
		streams:             make(map[*websocket.Conn]struct{}),
		clock:               config.Clock,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  256,
		WriteBufferSize: 256,
		CheckOrigin:     s.checkOrigin,
	}
	if s.streamCheckInterval <= 0 {
		s.streamCheckInterval = constants.StreamCheckInterval
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.process == nil {
		s.process = &models.ProcessConfig{}
	}
	s.startedAt = s.clock()
	return s
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /connections", s.handleRegisterGenerated)
	mux.HandleFunc("GET /connections", s.handleList)
	mux.HandleFunc("POST /connections/{id}", s.handleRegister)
	mux.HandleFunc("GET /connections/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /connections/{id}", s.handleEvict)
	mux.HandleFunc("POST /connections/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /connections/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.settings != nil {
		mux.HandleFunc("GET /config", s.handleConfig)
		mux.HandleFunc("POST /config/reload", s.handleConfigReload)
	}

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return s.instrument(s.recoverPanics(mux))
}
