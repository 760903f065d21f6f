package metrics_collectors

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// MetricsRegistry holds the process metric collectors reported by the health endpoint.
type MetricsRegistry struct {
	mu         sync.RWMutex
	collectors map[string]MetricCollector
	logger     zerolog.Logger
}

// NewMetricsRegistry creates a new, empty MetricsRegistry.
func NewMetricsRegistry(logger zerolog.Logger) *MetricsRegistry {
	return &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
		logger:     logger,
	}
}

// NewDefaultRegistry creates a registry with the CPU, memory and goroutine collectors
// for the current process.
func NewDefaultRegistry(logger zerolog.Logger) (*MetricsRegistry, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process: %w", err)
	}

	r := NewMetricsRegistry(logger)
	r.Register(&CPUMetricCollector{Process: proc, Logger: logger})
	r.Register(&MemoryMetricCollector{Process: proc, Logger: logger})
	r.Register(&GoroutineMetricCollector{Logger: logger})
	return r, nil
}

// Register adds a collector, replacing any collector with the same name.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns a copy of the registered collectors.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collectors := make(map[string]MetricCollector, len(r.collectors))
	for name, c := range r.collectors {
		collectors[name] = c
	}
	return collectors
}

// CollectAll runs every collector enabled by config concurrently. Collectors that fail
// or do not finish before ctx is done are left out of the result.
func (r *MetricsRegistry) CollectAll(ctx context.Context, config *models.ProcessConfig) map[string]models.ProcessMetric {
	result := make(map[string]models.ProcessMetric)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, collector := range r.GetCollectors() {
		if !collector.IsEnabled(config) {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := collector.Collect(ctx)
			if err != nil || ctx.Err() != nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			result[name] = models.ProcessMetric{
				Value:       value,
				Unit:        collector.Unit(),
				Description: collector.Description(),
			}
		}()
	}

	wg.Wait()
	r.logger.Debug().Int("metrics", len(result)).Msg("Process metrics collected")
	return result
}
