package models

import "github.com/benmeehan/irc-conntrack/internal/constants"

// HealthReport summarizes the tracker and the host process.
type HealthReport struct {
	Status        string                             `json:"status"`
	UptimeSeconds float64                            `json:"uptime_seconds"`
	Tracked       int                                `json:"tracked"`
	ByStatus      map[constants.ConnectionStatus]int `json:"by_status"`
	Process       map[string]ProcessMetric           `json:"process,omitempty"`
}

// ProcessMetric is a single process-level measurement.
type ProcessMetric struct {
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Description string  `json:"description"`
}

// ProcessConfig selects which process metrics are collected for the health report.
type ProcessConfig struct {
	MonitorCPU        bool `yaml:"monitor_cpu"`
	MonitorMemory     bool `yaml:"monitor_memory"`
	MonitorGoroutines bool `yaml:"monitor_goroutines"`
}
