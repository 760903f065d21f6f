package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/irc-conntrack/internal/metrics"
	"github.com/benmeehan/irc-conntrack/internal/tracker"
	"github.com/rs/zerolog"
)

// SweepService periodically ages tracked connections.
type SweepService struct {
	Tracker    tracker.ConnectionTracker
	Interval   time.Duration
	StaleAfter time.Duration
	EvictAfter time.Duration
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger

	// Clock overrides time.Now.
	Clock func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards StaleAfter and EvictAfter once the loop runs.
	mu sync.RWMutex
}

// NewSweepService initializes a new SweepService.
func NewSweepService(t tracker.ConnectionTracker, interval, staleAfter, evictAfter time.Duration,
	m *metrics.Metrics, logger zerolog.Logger) *SweepService {

	return &SweepService{
		Tracker:    t,
		Interval:   interval,
		StaleAfter: staleAfter,
		EvictAfter: evictAfter,
		Metrics:    m,
		Logger:     logger,
		Clock:      time.Now,
	}
}

// Start launches the sweep loop in a separate goroutine.
func (s *SweepService) Start() error {
	if s.ctx != nil {
		s.Logger.Warn().Msg("SweepService is already running")
		return errors.New("sweep service is already running")
	}
	if s.Interval <= 0 {
		return errors.New("sweep interval must be positive")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runSweepLoop()
	}()

	staleAfter, evictAfter := s.Thresholds()
	s.Logger.Info().
		Dur("interval", s.Interval).
		Dur("stale_after", staleAfter).
		Dur("evict_after", evictAfter).
		Msg("SweepService started successfully")
	return nil
}

// Stop gracefully stops the sweep service.
func (s *SweepService) Stop() error {
	if s.ctx == nil {
		s.Logger.Warn().Msg("SweepService is not running")
		return errors.New("sweep service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("SweepService stopped successfully")
	return nil
}

// SetThresholds replaces the staleness and eviction windows. The next pass uses them.
func (s *SweepService) SetThresholds(staleAfter, evictAfter time.Duration) {
	s.mu.Lock()
	s.StaleAfter = staleAfter
	s.EvictAfter = evictAfter
	s.mu.Unlock()

	s.Logger.Info().Dur("stale_after", staleAfter).Dur("evict_after", evictAfter).Msg("Sweep thresholds updated")
}

// Thresholds returns the current staleness and eviction windows.
func (s *SweepService) Thresholds() (staleAfter, evictAfter time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StaleAfter, s.EvictAfter
}

// SweepOnce runs a single pass and returns the number of removed connections.
func (s *SweepService) SweepOnce() int {
	staleAfter, evictAfter := s.Thresholds()

	start := time.Now()
	evicted := s.Tracker.Sweep(s.Clock(), staleAfter, evictAfter)
	s.Metrics.ObserveSweep(evicted, time.Since(start))

	if evicted > 0 {
		s.Logger.Info().Int("evicted", evicted).Msg("Sweep removed timed out connections")
	} else {
		s.Logger.Debug().Msg("Sweep completed")
	}
	return evicted
}

func (s *SweepService) runSweepLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-s.ctx.Done():
			s.Logger.Info().Msg("SweepService stopping gracefully")
			return
		}
	}
}
