package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"signalwatch/internal/domain/signal"
)

// StateSource returns copies of the current per-feed schedule states
type StateSource interface {
	States() []signal.ScheduleState
}

// FeedStateCollector exports live scheduler state at scrape time
type FeedStateCollector struct {
	source StateSource

	// Descriptors
	interval    *prometheus.Desc
	fetching    *prometheus.Desc
	unreachable *prometheus.Desc
}

// NewFeedStateCollector creates a collector reading from source
func NewFeedStateCollector(source StateSource) *FeedStateCollector {
	return &FeedStateCollector{
		source: source,
		interval: prometheus.NewDesc(
			"signalwatch_feed_interval_seconds",
			"Configured refresh interval per feed",
			[]string{"feed"}, nil,
		),
		fetching: prometheus.NewDesc(
			"signalwatch_feed_fetching",
			"Whether a fetch is in flight (0|1)",
			[]string{"feed"}, nil,
		),
		unreachable: prometheus.NewDesc(
			"signalwatch_feed_unreachable",
			"Whether the feed crossed the consecutive failure threshold (0|1)",
			[]string{"feed"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *FeedStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.interval
	ch <- c.fetching
	ch <- c.unreachable
}

// Collect implements prometheus.Collector
func (c *FeedStateCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.source.States() {
		ch <- prometheus.MustNewConstMetric(c.interval, prometheus.GaugeValue, st.Interval.Seconds(), st.FeedID)
		ch <- prometheus.MustNewConstMetric(c.fetching, prometheus.GaugeValue, boolValue(st.IsFetching), st.FeedID)
		ch <- prometheus.MustNewConstMetric(c.unreachable, prometheus.GaugeValue, boolValue(st.Unreachable()), st.FeedID)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
