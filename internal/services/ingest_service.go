package services

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/metrics"
	mqtt_middleware "github.com/benmeehan/irc-conntrack/internal/middlewares/mqtt"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/benmeehan/irc-conntrack/internal/utils"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	"github.com/benmeehan/irc-conntrack/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTIngestService feeds heartbeats published on <topic>/<connection id> into the
// tracker. Payloads are decoded and applied on a worker pool so a slow tracker never
// stalls the MQTT client.
type MQTTIngestService struct {
	// Configuration Fields
	topic   string
	qos     int
	workers int

	// Dependencies
	mqttClient mqtt.MQTTClient
	tracker    tracker.ConnectionTracker
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	clock      func() time.Time

	// Internal state management
	mu   sync.Mutex
	pool *utils.WorkerPool
}

// NewMQTTIngestService initializes a new MQTTIngestService.
func NewMQTTIngestService(topic string, qos, workers int, mqttClient mqtt.MQTTClient,
	t tracker.ConnectionTracker, m *metrics.Metrics, logger zerolog.Logger) *MQTTIngestService {
	if workers <= 0 {
		workers = constants.DefaultIngestWorkers
	}

	return &MQTTIngestService{
		topic:      strings.TrimRight(topic, "/"),
		qos:        qos,
		workers:    workers,
		mqttClient: mqttClient,
		tracker:    t,
		metrics:    m,
		logger:     logger,
		clock:      time.Now,
	}
}

// subscription is the wildcard topic covering every connection id.
func (s *MQTTIngestService) subscription() string {
	return s.topic + "/+"
}

// Start subscribes to the heartbeat topic.
func (s *MQTTIngestService) Start() error {
	s.mu.Lock()
	if s.pool != nil {
		s.mu.Unlock()
		return errors.New("mqtt ingest service is already running")
	}
	s.pool = utils.NewWorkerPool(s.workers, s.workers*constants.IngestQueueSize, func(r any) {
		s.logger.Error().Interface("panic", r).Msg("Heartbeat ingestion panicked")
	})
	s.mu.Unlock()

	topic := s.subscription()
	s.logger.Info().Str("topic", topic).Msg("Starting MQTTIngestService and subscribing to MQTT topic")

	handler := mqtt_middleware.Chain(s.HandleHeartbeat,
		mqtt_middleware.Recover(s.logger),
		mqtt_middleware.LimitPayload(constants.MaxHeartbeatPayload, s.rejectOversized),
	)
	token := s.mqttClient.Subscribe(topic, byte(s.qos), handler)
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		s.shutdownPool()
		return err
	}

	s.logger.Info().Str("topic", topic).Int("workers", s.workers).Msg("Successfully subscribed to MQTT topic")
	return nil
}

// Stop unsubscribes and waits for queued heartbeats to be applied.
func (s *MQTTIngestService) Stop() error {
	s.mu.Lock()
	running := s.pool != nil
	s.mu.Unlock()
	if !running {
		return errors.New("mqtt ingest service is not running")
	}

	topic := s.subscription()
	token := s.mqttClient.Unsubscribe(topic)
	token.Wait()
	err := token.Error()
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from MQTT topic")
	}

	s.shutdownPool()
	s.logger.Info().Msg("MQTTIngestService stopped successfully")
	return err
}

func (s *MQTTIngestService) shutdownPool() {
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}

// HandleHeartbeat queues an incoming MQTT message for ingestion.
func (s *MQTTIngestService) HandleHeartbeat(_ MQTT.Client, msg MQTT.Message) {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	topic, payload := msg.Topic(), msg.Payload()
	if pool == nil || !pool.Submit(func() { s.ingest(topic, payload) }) {
		s.logger.Warn().Str("topic", topic).Msg("Received heartbeat but service is stopping, ignoring it")
	}
}

func (s *MQTTIngestService) rejectOversized(topic string) {
	s.metrics.HeartbeatReceived(metrics.SourceMQTT, metrics.ResultMalformed)
	s.logger.Warn().Str("topic", topic).Msg("Dropping oversized heartbeat")
}

// ingest applies one heartbeat message.
func (s *MQTTIngestService) ingest(topic string, payload []byte) {
	id, ok := strings.CutPrefix(topic, s.topic+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		s.logger.Warn().Str("topic", topic).Msg("Heartbeat topic does not name a connection, dropping it")
		return
	}

	msg, err := heartbeat.Decode(payload)
	if err != nil {
		s.metrics.HeartbeatReceived(metrics.SourceMQTT, metrics.ResultMalformed)
		s.logger.Warn().Err(err).Str("connection_id", id).Msg("Dropping malformed heartbeat")
		return
	}

	now := s.clock()
	if err := s.tracker.Heartbeat(id, msg, now); err != nil {
		s.metrics.HeartbeatReceived(metrics.SourceMQTT, metrics.ResultUnknown)
		s.logger.Debug().Err(err).Str("connection_id", id).Msg("Dropping heartbeat for untracked connection")
		return
	}

	s.metrics.HeartbeatReceived(metrics.SourceMQTT, metrics.ResultAccepted)
	s.metrics.ObserveLatency(msg.Latency(now))
}
