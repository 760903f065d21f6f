package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	"github.com/benmeehan/irc-conntrack/pkg/mqtt"
	"github.com/rs/zerolog"
)

// HeartbeatSink delivers an encoded heartbeat for a connection.
type HeartbeatSink interface {
	SendHeartbeat(ctx context.Context, id string, payload []byte) error
}

// HeartbeatService periodically sends heartbeats on behalf of one connection.
type HeartbeatService struct {
	ConnectionID string
	Interval     time.Duration
	Timeout      time.Duration
	Sink         HeartbeatSink
	Logger       zerolog.Logger

	// OnSent, if set, is called after every attempt with its result.
	OnSent func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService. Each send is bounded by timeout.
func NewHeartbeatService(connectionID string, interval, timeout time.Duration, sink HeartbeatSink,
	logger zerolog.Logger) *HeartbeatService {

	return &HeartbeatService{
		ConnectionID: connectionID,
		Interval:     interval,
		Timeout:      timeout,
		Sink:         sink,
		Logger:       logger,
	}
}

// Start sends a first heartbeat immediately and then one per interval.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}
	if h.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop()
	}()

	h.Logger.Info().Str("connection_id", h.ConnectionID).Dur("interval", h.Interval).Msg("HeartbeatService started successfully")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

// SendOnce sends one heartbeat stamped with the current time.
func (h *HeartbeatService) SendOnce(ctx context.Context) error {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	payload := heartbeat.Encode(heartbeat.Now(time.Now()))
	err := h.Sink.SendHeartbeat(ctx, h.ConnectionID, payload)
	if err != nil {
		h.Logger.Error().Err(err).Str("connection_id", h.ConnectionID).Msg("Failed to send heartbeat")
	} else {
		h.Logger.Debug().Str("connection_id", h.ConnectionID).Msg("Heartbeat sent successfully")
	}

	if h.OnSent != nil {
		h.OnSent(err)
	}
	return err
}

func (h *HeartbeatService) runHeartbeatLoop() {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	_ = h.SendOnce(h.ctx)
	for {
		select {
		case <-ticker.C:
			_ = h.SendOnce(h.ctx)
		case <-h.ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

// MQTTSink publishes heartbeats to <topic>/<connection id>.
type MQTTSink struct {
	Topic  string
	QOS    int
	Client mqtt.MQTTClient
}

// SendHeartbeat publishes payload and waits for the broker acknowledgement or ctx.
func (s *MQTTSink) SendHeartbeat(ctx context.Context, id string, payload []byte) error {
	topic := fmt.Sprintf("%s/%s", s.Topic, id)

	token := s.Client.Publish(topic, byte(s.QOS), false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
