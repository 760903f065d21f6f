package metrics

import (
	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/prometheus/client_golang/prometheus"
)

// trackedCollector reports the per-status counts of the tracker at scrape time.
type trackedCollector struct {
	desc    *prometheus.Desc
	counter StatusCounter
}

func newTrackedCollector(namespace string, counter StatusCounter) *trackedCollector {
	return &trackedCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "tracked_connections"),
			"Number of tracked connections by status",
			[]string{"status"}, nil,
		),
		counter: counter,
	}
}

func (c *trackedCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *trackedCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.counter.Counts()
	for _, status := range constants.ConnectionStatuses {
		if status == constants.StatusDisconnected {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
