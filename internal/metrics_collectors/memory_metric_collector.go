package metrics_collectors

import (
	"context"

	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// MemoryMetricCollector collects the resident set size of the conntrack process.
type MemoryMetricCollector struct {
	Process *process.Process
	Logger  zerolog.Logger
}

// Name returns the identifier for the memory metric collector.
func (m *MemoryMetricCollector) Name() string {
	return "memory"
}

// Collect retrieves the resident set size in bytes.
func (m *MemoryMetricCollector) Collect(ctx context.Context) (float64, error) {
	memInfo, err := m.Process.MemoryInfoWithContext(ctx)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to retrieve process memory information")
		return 0, err
	}

	rss := float64(memInfo.RSS)
	m.Logger.Debug().Float64("memory_rss", rss).Msg("Memory usage collected successfully")
	return rss, nil
}

// IsEnabled checks if memory monitoring is enabled in the configuration.
func (m *MemoryMetricCollector) IsEnabled(config *models.ProcessConfig) bool {
	return config.MonitorMemory
}

// Unit specifies the unit for memory usage metrics.
func (m *MemoryMetricCollector) Unit() string {
	return "bytes"
}

// Description provides details of the memory usage metrics collected.
func (m *MemoryMetricCollector) Description() string {
	return "Resident set size of the conntrack process."
}
