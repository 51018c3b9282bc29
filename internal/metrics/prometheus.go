package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Feed metrics
	FeedFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_feed_fetches_total",
			Help: "Total number of feed fetches",
		},
		[]string{"feed", "status"}, // status: success|network|timeout|http_status|decode
	)

	FeedFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signalwatch_feed_fetch_duration_seconds",
			Help:    "Feed fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"feed"},
	)

	FeedLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signalwatch_feed_last_success_timestamp",
			Help: "Unix timestamp of the last successful fetch",
		},
		[]string{"feed"},
	)

	FeedConsecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signalwatch_feed_consecutive_failures",
			Help: "Consecutive failed fetches per feed",
		},
		[]string{"feed"},
	)

	FeedSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_feed_skipped_total",
			Help: "Polls skipped because a fetch was in flight or the feed was cancelled",
		},
		[]string{"feed", "reason"}, // reason: in_flight|cancelled
	)

	// Normalizer metrics
	NormalizeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_normalize_errors_total",
			Help: "Payloads that matched no known envelope",
		},
		[]string{"feed"},
	)

	DroppedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_dropped_records_total",
			Help: "Records dropped from otherwise valid batches",
		},
		[]string{"feed", "field"},
	)

	// Novelty metrics
	LedgerSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalwatch_novelty_ledger_size",
			Help: "Fingerprints currently held by the novelty ledger",
		},
	)

	LedgerEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_novelty_evictions_total",
			Help: "Fingerprints evicted from the novelty ledger",
		},
		[]string{"reason"}, // reason: horizon|cap
	)

	// Alert metrics
	AlertsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_alerts_dispatched_total",
			Help: "Aggregated alert notifications dispatched",
		},
		[]string{"kind"},
	)

	AlertEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_alert_events_total",
			Help: "Novel events covered by dispatched alerts",
		},
		[]string{"kind"},
	)

	PulsesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_pulses_started_total",
			Help: "Audio pulses started, including restarts",
		},
		[]string{"kind", "restart"},
	)

	NotifierFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_notifier_failures_total",
			Help: "Notification sink failures",
		},
		[]string{"sink"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_kafka_messages_total",
			Help: "Total Kafka messages produced",
		},
		[]string{"topic", "status"},
	)

	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalwatch_websocket_clients",
			Help: "Current number of connected dashboard clients",
		},
	)

	SettingsQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_settings_queries_total",
			Help: "Settings store operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(FeedFetches)
		prometheus.MustRegister(FeedFetchDuration)
		prometheus.MustRegister(FeedLastSuccess)
		prometheus.MustRegister(FeedConsecutiveFailures)
		prometheus.MustRegister(FeedSkipped)

		prometheus.MustRegister(NormalizeErrors)
		prometheus.MustRegister(DroppedRecords)

		prometheus.MustRegister(LedgerSize)
		prometheus.MustRegister(LedgerEvictions)

		prometheus.MustRegister(AlertsDispatched)
		prometheus.MustRegister(AlertEvents)
		prometheus.MustRegister(PulsesStarted)
		prometheus.MustRegister(NotifierFailures)

		prometheus.MustRegister(KafkaMessages)
		prometheus.MustRegister(WebSocketClients)
		prometheus.MustRegister(SettingsQueries)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records one completed feed fetch. status is "success" or a fetch error kind.
func RecordFetch(feed, status string, latency time.Duration) {
	FeedFetches.WithLabelValues(feed, status).Inc()
	FeedFetchDuration.WithLabelValues(feed).Observe(latency.Seconds())
}

// RecordPollOutcome updates the per-feed health gauges after a poll
func RecordPollOutcome(feed string, lastSuccess time.Time, consecutiveFailures int) {
	if !lastSuccess.IsZero() {
		FeedLastSuccess.WithLabelValues(feed).Set(float64(lastSuccess.Unix()))
	}
	FeedConsecutiveFailures.WithLabelValues(feed).Set(float64(consecutiveFailures))
}

// RecordAlert records one dispatched notification
func RecordAlert(kind string, events int) {
	AlertsDispatched.WithLabelValues(kind).Inc()
	AlertEvents.WithLabelValues(kind).Add(float64(events))
}

// RecordSettingsQuery records a settings store operation
func RecordSettingsQuery(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SettingsQueries.WithLabelValues(backend, operation, status).Inc()
}
