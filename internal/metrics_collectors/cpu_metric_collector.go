package metrics_collectors

import (
	"context"

	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"
)

// CPUMetricCollector collects the CPU usage of the conntrack process.
type CPUMetricCollector struct {
	Process *process.Process
	Logger  zerolog.Logger
}

func (c *CPUMetricCollector) Name() string {
	return "cpu"
}

func (c *CPUMetricCollector) Collect(ctx context.Context) (float64, error) {
	percent, err := c.Process.CPUPercentWithContext(ctx)
	if err != nil {
		c.Logger.Error().Err(err).Msg("Failed to get process CPU usage")
		return 0, err
	}

	c.Logger.Debug().Float64("cpu_usage", percent).Msg("CPU usage collected successfully")
	return percent, nil
}

func (c *CPUMetricCollector) IsEnabled(config *models.ProcessConfig) bool {
	return config.MonitorCPU
}

func (c *CPUMetricCollector) Unit() string {
	return "percentage"
}

func (c *CPUMetricCollector) Description() string {
	return "CPU utilization of the conntrack process since it started."
}
